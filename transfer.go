package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/transfer"
	"github.com/pkg/errors"
)

type TransferAPI interface {
	StartDirectoryListing(ctx context.Context, params *transfer.StartDirectoryListingInput, optFns ...func(*transfer.Options)) (*transfer.StartDirectoryListingOutput, error)
	StartFileTransfer(ctx context.Context, params *transfer.StartFileTransferInput, optFns ...func(*transfer.Options)) (*transfer.StartFileTransferOutput, error)
}

// AWSTransferClient drives SFTP connectors of the AWS Transfer service.
type AWSTransferClient struct {
	Client TransferAPI
}

func NewAWSTransferClient(appConfig AppConfig) (*AWSTransferClient, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithSharedConfigProfile(appConfig.Provider.Profile),
		config.WithRegion(appConfig.Provider.Region))
	if err != nil {
		return nil, fmt.Errorf("Error creating transfer client: %+v\n", err)
	}

	return &AWSTransferClient{Client: transfer.NewFromConfig(cfg)}, nil
}

func (t *AWSTransferClient) StartDirectoryListing(ctx context.Context, connector, remoteFolderPath, outputPath string) (ListingHandle, error) {
	out, err := t.Client.StartDirectoryListing(ctx, &transfer.StartDirectoryListingInput{
		ConnectorId:         aws.String(connector),
		RemoteDirectoryPath: aws.String(remoteFolderPath),
		OutputDirectoryPath: aws.String(outputPath),
	})
	if err != nil {
		return ListingHandle{}, errors.Wrapf(err, "start directory listing of %s", remoteFolderPath)
	}

	return ListingHandle{
		ListingID:      aws.ToString(out.ListingId),
		OutputFileName: aws.ToString(out.OutputFileName),
	}, nil
}

func (t *AWSTransferClient) StartFileTransfer(ctx context.Context, connector string, filePaths []string, localDirectoryPath string) (string, error) {
	out, err := t.Client.StartFileTransfer(ctx, &transfer.StartFileTransferInput{
		ConnectorId:        aws.String(connector),
		RetrieveFilePaths:  filePaths,
		LocalDirectoryPath: aws.String(localDirectoryPath),
	})
	if err != nil {
		return "", errors.Wrapf(err, "start file transfer into %s", localDirectoryPath)
	}

	return aws.ToString(out.TransferId), nil
}
