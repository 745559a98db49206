package evidence

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

// AzureConfig targets an Azure Blob Storage container.
type AzureConfig struct {
	Account    string
	AccountKey string
	SASToken   string
	Endpoint   string
	Container  string
}

// AzureSink writes block blobs.
type AzureSink struct {
	client    *azblob.Client
	container string
}

// NewAzureSink authenticates with a SAS token or shared key and creates the
// container when missing.
func NewAzureSink(ctx context.Context, cfg AzureConfig) (*AzureSink, error) {
	if cfg.Account == "" {
		return nil, fmt.Errorf("evidence: azure account required")
	}
	if cfg.Container == "" {
		return nil, fmt.Errorf("evidence: azure container required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.Account)
	}
	var (
		client *azblob.Client
		err    error
	)
	switch {
	case cfg.SASToken != "":
		withSAS, serr := appendSASToken(endpoint, cfg.SASToken)
		if serr != nil {
			return nil, serr
		}
		client, err = azblob.NewClientWithNoCredential(withSAS, nil)
	case cfg.AccountKey != "":
		cred, cerr := azblob.NewSharedKeyCredential(cfg.Account, cfg.AccountKey)
		if cerr != nil {
			return nil, fmt.Errorf("evidence: azure credentials: %w", cerr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)
	default:
		return nil, fmt.Errorf("evidence: azure account key or SAS token required")
	}
	if err != nil {
		return nil, fmt.Errorf("evidence: azure client: %w", err)
	}
	createCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := client.CreateContainer(createCtx, cfg.Container, nil); err != nil && !isContainerExists(err) {
		return nil, fmt.Errorf("evidence: azure create container: %w", err)
	}
	return &AzureSink{client: client, container: cfg.Container}, nil
}

// Put uploads payload as a block blob.
func (s *AzureSink) Put(ctx context.Context, key string, payload []byte) error {
	_, err := s.client.UploadBuffer(ctx, s.container, key, payload, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(ContentType)},
	})
	return err
}

// Close is a no-op.
func (s *AzureSink) Close() error { return nil }

func appendSASToken(endpoint, sas string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("evidence: azure endpoint: %w", err)
	}
	sas = strings.TrimPrefix(sas, "?")
	if u.RawQuery != "" {
		u.RawQuery += "&" + sas
	} else {
		u.RawQuery = sas
	}
	return u.String(), nil
}

func isContainerExists(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusConflict && strings.EqualFold(respErr.ErrorCode, "ContainerAlreadyExists")
	}
	return false
}
