package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/sirupsen/logrus"
)

const (
	reportContentType = "application/json"
	uploadBlockSize   = 1024 * 1024
	uploadConcurrency = 3
)

// AzureArchive keeps generated reports as JSON blobs in one container.
// Missing reports surface as ErrNotFound, like FileArchive.
type AzureArchive struct {
	client    *azblob.Client
	container string
}

var _ Archive = (*AzureArchive)(nil)

// NewAzureArchive authenticates with the default credential chain (managed
// identity in Azure, the CLI login locally) and creates the container on
// first use
func NewAzureArchive(ctx context.Context, account, container string) (*AzureArchive, error) {
	if account == "" || container == "" {
		return nil, fmt.Errorf("storage account and container are required for the report archive")
	}

	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	client, err := azblob.NewClient(fmt.Sprintf("https://%s.blob.core.windows.net/", account), credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
	}

	archive := &AzureArchive{client: client, container: container}
	if err := archive.ensureContainer(ctx); err != nil {
		return nil, err
	}
	return archive, nil
}

func (a *AzureArchive) ensureContainer(ctx context.Context) error {
	_, err := a.client.CreateContainer(ctx, a.container, nil)
	switch {
	case bloberror.HasCode(err, bloberror.ContainerAlreadyExists):
		logrus.Debugf("Report container %s already exists", a.container)
	case err != nil:
		return fmt.Errorf("failed to create report container %s: %w", a.container, err)
	default:
		logrus.Infof("Created report container %s", a.container)
	}
	return nil
}

// Store uploads a report, replacing any report with the same name
func (a *AzureArchive) Store(ctx context.Context, name string, data []byte) error {
	if err := checkReportName(name); err != nil {
		return err
	}

	contentType := reportContentType
	_, err := a.client.UploadBuffer(ctx, a.container, name, data, &azblob.UploadBufferOptions{
		BlockSize:   uploadBlockSize,
		Concurrency: uploadConcurrency,
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return fmt.Errorf("failed to upload report %s: %w", name, err)
	}

	logrus.WithFields(logrus.Fields{
		"container": a.container,
		"file":      name,
		"bytes":     len(data),
	}).Info("Archived report to blob storage")
	return nil
}

func (a *AzureArchive) Retrieve(ctx context.Context, name string) ([]byte, error) {
	if err := checkReportName(name); err != nil {
		return nil, err
	}

	response, err := a.client.DownloadStream(ctx, a.container, name, nil)
	if err != nil {
		return nil, a.blobError("download", name, err)
	}
	defer response.Body.Close()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read report %s: %w", name, err)
	}
	return data, nil
}

// List returns report names starting with prefix in lexical order, which for
// the report naming scheme is also generation order
func (a *AzureArchive) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{Prefix: &prefix})

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list reports in %s: %w", a.container, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}
	return names, nil
}

func (a *AzureArchive) Delete(ctx context.Context, name string) error {
	if err := checkReportName(name); err != nil {
		return err
	}
	if _, err := a.client.DeleteBlob(ctx, a.container, name, nil); err != nil {
		return a.blobError("delete", name, err)
	}

	logrus.Infof("Deleted report %s from blob storage", name)
	return nil
}

func (a *AzureArchive) blobError(op, name string, err error) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return fmt.Errorf("report %s: %w", name, ErrNotFound)
	}
	return fmt.Errorf("failed to %s report %s: %w", op, name, err)
}
