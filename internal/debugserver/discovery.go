package debugserver

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"

	"github.com/cockpitvm/hypervisor/internal/vmerr"
)

// BenchRegistrar publishes this debug server's address under a DNS name in
// a Route53 hosted zone, so a lab with several benches can find a given
// target's telemetry endpoint by name instead of by tracked IP. Grounded
// on the teacher's go.mod-declared aws-sdk-go-v2/service/route53 dependency
// (node discovery infrastructure in the wider ecosystem this pack is drawn
// from uses the same hosted-zone UPSERT pattern for peer advertisement).
type BenchRegistrar struct {
	client     *route53.Client
	hostedZone string
}

// NewBenchRegistrar loads AWS credentials from the default provider chain
// (environment, shared config, or EC2/ECS role) and targets hostedZoneID.
func NewBenchRegistrar(ctx context.Context, hostedZoneID string) (*BenchRegistrar, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, vmerr.Wrap(vmerr.HardwareFault, err, "load AWS config")
	}
	return &BenchRegistrar{
		client:     route53.NewFromConfig(cfg),
		hostedZone: hostedZoneID,
	}, nil
}

// Register UPSERTs an A record mapping benchName.<zone> to addr, with a
// short TTL since lab benches move between hosts often.
func (r *BenchRegistrar) Register(ctx context.Context, benchName, addr string) error {
	const ttl = 30
	_, err := r.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(r.hostedZone),
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{
				{
					Action: types.ChangeActionUpsert,
					ResourceRecordSet: &types.ResourceRecordSet{
						Name:            aws.String(fmt.Sprintf("%s.cockpitvm.bench.", benchName)),
						Type:            types.RRTypeA,
						TTL:             aws.Int64(ttl),
						ResourceRecords: []types.ResourceRecord{{Value: aws.String(addr)}},
					},
				},
			},
		},
	})
	if err != nil {
		return vmerr.Wrap(vmerr.HardwareFault, err, "register bench DNS record")
	}
	return nil
}
