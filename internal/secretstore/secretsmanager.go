package secretstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SecretsManagerAPI is the subset of the Secrets Manager client this
// adapter calls.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error)
}

// SecretsManagerStore implements Store against AWS Secrets Manager.
type SecretsManagerStore struct {
	client SecretsManagerAPI
}

// NewSecretsManagerStore constructs a Store. Wrap it with
// NewAllowlistedDescriber before handing it to anything that exposes
// DescribeSecret as a tool.
func NewSecretsManagerStore(client SecretsManagerAPI) *SecretsManagerStore {
	return &SecretsManagerStore{client: client}
}

func (s *SecretsManagerStore) GetSecretString(ctx context.Context, secretID string) (string, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(secretID)})
	if err != nil {
		return "", fmt.Errorf("secretstore get %s: %w", secretID, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secretstore get %s: secret has no string value", secretID)
	}
	return *out.SecretString, nil
}

func (s *SecretsManagerStore) DescribeSecret(ctx context.Context, secretID string) (SecretMetadata, error) {
	out, err := s.client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{SecretId: aws.String(secretID)})
	if err != nil {
		return SecretMetadata{}, fmt.Errorf("secretstore describe %s: %w", secretID, err)
	}
	return SecretMetadata{
		ARN:               aws.ToString(out.ARN),
		Name:              aws.ToString(out.Name),
		Description:       aws.ToString(out.Description),
		KMSKeyID:          aws.ToString(out.KmsKeyId),
		RotationEnabled:   aws.ToBool(out.RotationEnabled),
		RotationLambdaARN: aws.ToString(out.RotationLambdaARN),
		LastChangedDate:   formatTime(out.LastChangedDate),
		LastRotatedDate:   formatTime(out.LastRotatedDate),
		LastAccessedDate:  formatTime(out.LastAccessedDate),
		DeletedDate:       formatTime(out.DeletedDate),
		Tags:              tagsToMap(out.Tags),
	}, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05Z07:00")
}

func tagsToMap(tags []types.Tag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for _, t := range tags {
		out[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return out
}
