package reliability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aristath/sharpe/internal/modules/optimization"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, input)
	f.bodies = append(f.bodies, body)
	if f.err != nil {
		return nil, f.err
	}
	return &manager.UploadOutput{Key: input.Key}, nil
}

func testRun() *optimization.Run {
	return &optimization.Run{
		ID:         "4f0c2a9e",
		Solver:     optimization.SolverNonlinear,
		Status:     "GradientThreshold",
		AssetCount: 2,
		Weights:    []float64{0.6, 0.4},
		Metrics:    optimization.Metrics{Sharpe: 0.08},
		CreatedAt:  time.Date(2026, 7, 4, 23, 30, 0, 0, time.FixedZone("EST", -5*3600)),
	}
}

func TestS3Archiver_Key(t *testing.T) {
	a := newS3Archiver(&fakeUploader{}, "bucket", "", zerolog.Nop())
	// Keys use the UTC date
	assert.Equal(t, "runs/2026/07/05/4f0c2a9e.json", a.Key(testRun()))

	custom := newS3Archiver(&fakeUploader{}, "bucket", "archive/prod", zerolog.Nop())
	assert.Equal(t, "archive/prod/2026/07/05/4f0c2a9e.json", custom.Key(testRun()))
}

func TestS3Archiver_Archive(t *testing.T) {
	up := &fakeUploader{}
	a := newS3Archiver(up, "sharpe-runs", "", zerolog.Nop())

	require.NoError(t, a.Archive(context.Background(), testRun()))
	require.Len(t, up.inputs, 1)

	input := up.inputs[0]
	assert.Equal(t, "sharpe-runs", aws.ToString(input.Bucket))
	assert.Equal(t, "runs/2026/07/05/4f0c2a9e.json", aws.ToString(input.Key))
	assert.Equal(t, "application/json", aws.ToString(input.ContentType))

	var stored optimization.Run
	require.NoError(t, json.Unmarshal(up.bodies[0], &stored))
	assert.Equal(t, "4f0c2a9e", stored.ID)
	assert.Equal(t, []float64{0.6, 0.4}, stored.Weights)
}

func TestS3Archiver_UploadError(t *testing.T) {
	a := newS3Archiver(&fakeUploader{err: errors.New("access denied")}, "bucket", "", zerolog.Nop())
	err := a.Archive(context.Background(), testRun())
	assert.ErrorContains(t, err, "access denied")
}

func TestNewS3Archiver(t *testing.T) {
	_, err := NewS3Archiver(context.Background(), ArchiveConfig{}, zerolog.Nop())
	assert.Error(t, err, "bucket is required")

	a, err := NewS3Archiver(context.Background(), ArchiveConfig{
		Bucket:          "runs",
		Endpoint:        "http://127.0.0.1:9000",
		Region:          "auto",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "runs", a.bucket)
	assert.Equal(t, DefaultArchivePrefix, a.prefix)
}

func TestS3Archiver_ImplementsArchiver(t *testing.T) {
	var _ optimization.Archiver = newS3Archiver(&fakeUploader{}, "b", "", zerolog.Nop())
}
