package infra

import (
	"context"
	"encoding/base64"
	"fmt"

	kms "cloud.google.com/go/kms/apiv1"
	kmspb "cloud.google.com/go/kms/apiv1/kmspb"

	"schema-migrator/config"
)

// KMSClient はCloud KMSクライアントをラップする。
type KMSClient struct {
	client  *kms.KeyManagementClient
	keyName string
}

// NewKMSClient は指定された鍵名でKMSClientを生成する。
func NewKMSClient(ctx context.Context, keyName string) (*KMSClient, error) {
	if keyName == "" {
		return nil, fmt.Errorf("KMS_KEY_NAME is required")
	}

	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating KMS client: %w", err)
	}

	return &KMSClient{
		client:  client,
		keyName: keyName,
	}, nil
}

// Decrypt は暗号文をCloud KMSで復号する。
func (c *KMSClient) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	req := &kmspb.DecryptRequest{
		Name:       c.keyName,
		Ciphertext: ciphertext,
	}
	resp, err := c.client.Decrypt(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return resp.Plaintext, nil
}

// Close はKMSクライアントを閉じる。
func (c *KMSClient) Close() error {
	return c.client.Close()
}

// Decrypter は暗号文を復号する。
type Decrypter interface {
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// ResolvePassword は DB_PASSWORD_CIPHERTEXT が設定されている場合、復号して Password に設定する。
func ResolvePassword(ctx context.Context, db *config.DatabaseConfig, d Decrypter) error {
	if db.PasswordCiphertext == "" {
		return nil
	}
	ciphertext, err := base64.StdEncoding.DecodeString(db.PasswordCiphertext)
	if err != nil {
		return fmt.Errorf("decoding DB_PASSWORD_CIPHERTEXT: %w", err)
	}
	plaintext, err := d.Decrypt(ctx, ciphertext)
	if err != nil {
		return fmt.Errorf("decrypting database password: %w", err)
	}
	db.Password = string(plaintext)
	return nil
}
