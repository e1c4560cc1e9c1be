package storage

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, f.err
}

func TestArchiveKey(t *testing.T) {
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	assert.Equal(t, "invoice_paid/2026/02/03/evt_123_"+"1770091506000"+".json", ArchiveKey("invoice.paid", "evt_123", at))
}

func TestArchiveWebhookPayload(t *testing.T) {
	fake := &fakePutter{}
	c := &S3Client{client: fake, bucket: "archive", basePath: "webhooks/"}

	key, err := c.ArchiveWebhookPayload(context.Background(), "evt_1", "charge.refunded", []byte(`{"id":"evt_1"}`))
	require.NoError(t, err)

	assert.Contains(t, key, "webhooks/charge_refunded/")
	assert.Equal(t, "archive", *fake.input.Bucket)
	assert.Equal(t, key, *fake.input.Key)
	assert.Equal(t, "evt_1", fake.input.Metadata["event-id"])
	assert.JSONEq(t, `{"id":"evt_1"}`, string(fake.body))
}

func TestArchiveWebhookPayload_Error(t *testing.T) {
	c := &S3Client{client: &fakePutter{err: errors.New("denied")}, bucket: "archive"}
	_, err := c.ArchiveWebhookPayload(context.Background(), "evt_1", "invoice.paid", []byte(`{}`))
	assert.ErrorContains(t, err, "denied")
}
