package keyservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/smithy-go"
)

type kmsAPI interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// KMS is a Client backed by AWS KMS.
type KMS struct {
	api kmsAPI
}

func NewKMS(ctx context.Context, region string) (*KMS, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return &KMS{api: kms.NewFromConfig(cfg)}, nil
}

func (k *KMS) GenerateDataKey(ctx context.Context, masterKeyID string) (DataKey, error) {
	out, err := k.api.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(masterKeyID),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return DataKey{}, classifyKMSError(err)
	}
	return DataKey{Plaintext: out.Plaintext, Wrapped: out.CiphertextBlob}, nil
}

func (k *KMS) DecryptDataKey(ctx context.Context, masterKeyID string, wrapped []byte) ([]byte, error) {
	out, err := k.api.Decrypt(ctx, &kms.DecryptInput{
		KeyId:          aws.String(masterKeyID),
		CiphertextBlob: wrapped,
	})
	if err != nil {
		return nil, classifyKMSError(err)
	}
	return out.Plaintext, nil
}

func classifyKMSError(err error) error {
	var (
		invalidCiphertext *types.InvalidCiphertextException
		incorrectKey      *types.IncorrectKeyException
		notFound          *types.NotFoundException
		disabled          *types.DisabledException
		invalidState      *types.KMSInvalidStateException
	)
	switch {
	case errors.As(err, &invalidCiphertext), errors.As(err, &incorrectKey):
		return fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	case errors.As(err, &notFound), errors.As(err, &disabled), errors.As(err, &invalidState):
		return fmt.Errorf("%w: %v", ErrDenied, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "AccessDeniedException" {
		return fmt.Errorf("%w: %v", ErrDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
