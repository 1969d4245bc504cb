package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/config"
)

// LoadAWSConfig resolves credentials and region from the default chain.
func LoadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// AWSClients holds the service clients shared by the adapters.
type AWSClients struct {
	Config         aws.Config
	S3             *s3.Client
	SQS            *sqs.Client
	DynamoDB       *dynamodb.Client
	SFN            *sfn.Client
	Bedrock        *bedrockruntime.Client
	SecretsManager *secretsmanager.Client
}

// NewAWSClients builds every client from awsCfg. A non-empty endpoint overrides
// all services, which is how LocalStack is targeted.
func NewAWSClients(awsCfg aws.Config, cfg config.AWSConfig) *AWSClients {
	var endpoint *string
	if cfg.EndpointURL != "" {
		endpoint = aws.String(cfg.EndpointURL)
	}
	return &AWSClients{
		Config: awsCfg,
		S3: s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = endpoint
			// LocalStack serves buckets by path, not virtual host.
			o.UsePathStyle = endpoint != nil
		}),
		SQS:            sqs.NewFromConfig(awsCfg, func(o *sqs.Options) { o.BaseEndpoint = endpoint }),
		DynamoDB:       dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) { o.BaseEndpoint = endpoint }),
		SFN:            sfn.NewFromConfig(awsCfg, func(o *sfn.Options) { o.BaseEndpoint = endpoint }),
		Bedrock:        bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) { o.BaseEndpoint = endpoint }),
		SecretsManager: secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) { o.BaseEndpoint = endpoint }),
	}
}
