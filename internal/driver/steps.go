package driver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/chmdznr/minio-audit-demo/internal/generator"
	"github.com/chmdznr/minio-audit-demo/internal/storage"
	"github.com/chmdznr/minio-audit-demo/pkg/models"
	"github.com/chmdznr/minio-audit-demo/pkg/utils"
)

// DemoApp is the value of the demo-app metadata attached to every upload
const DemoApp = "parseable-minio-demo"

// EnsureBucket creates the bucket when it is missing and applies a
// public-read policy. Only the existence check and creation are fatal.
func (d *Driver) EnsureBucket(ctx context.Context) error {
	bucket := d.opts.Bucket
	d.log.Info().Str("bucket", bucket).Msg("checking bucket")

	started := time.Now()
	exists, err := d.store.BucketExists(ctx, bucket)
	d.record(storage.OpBucketExists, "", 0, started, err, models.OutcomeFailed)
	if err != nil {
		return fatal("ensure bucket", fmt.Errorf("error checking bucket existence: %w", err))
	}

	if !exists {
		d.log.Info().Str("bucket", bucket).Str("region", d.opts.Region).Msg("creating bucket")
		started = time.Now()
		err = d.store.MakeBucket(ctx, bucket, d.opts.Region)
		d.record(storage.OpMakeBucket, "", 0, started, err, models.OutcomeFailed)
		if err != nil {
			return fatal("ensure bucket", fmt.Errorf("error creating bucket: %w", err))
		}
		d.log.Info().Str("bucket", bucket).Msg("bucket created")
	} else {
		d.log.Info().Str("bucket", bucket).Msg("bucket already exists")
	}

	policy, err := storage.PublicReadPolicy(bucket)
	if err != nil {
		d.warn().Err(err).Msg("could not build bucket policy")
		return nil
	}
	started = time.Now()
	err = d.store.SetBucketPolicy(ctx, bucket, policy)
	d.record(storage.OpSetBucketPolicy, "", 0, started, err, models.OutcomeWarn)
	if err != nil {
		d.warn().Err(err).Str("bucket", bucket).Msg("could not set bucket policy")
		return nil
	}
	d.log.Info().Str("bucket", bucket).Msg("public-read policy set")
	return nil
}

// GenerateFiles writes count synthetic files to the upload directory
func (d *Driver) GenerateFiles(count int) ([]models.SyntheticFile, error) {
	d.log.Info().Int("count", count).Msg("generating random files")

	files, err := d.files.Generate(count)
	for i, f := range files {
		d.log.Info().Msgf("   %d. %s (%s)", i+1, f.Name, utils.FormatSize(f.Size))
	}
	if err != nil {
		return files, fatal("generate files", err)
	}
	return files, nil
}

// UploadAll uploads every file in order, deleting each local copy once its
// upload succeeded, and returns the files that made it to the bucket.
func (d *Driver) UploadAll(ctx context.Context, files []models.SyntheticFile) ([]models.SyntheticFile, error) {
	bar := d.newBar("upload", len(files))
	defer bar.Finish()

	uploaded := make([]models.SyntheticFile, 0, len(files))
	for i, file := range files {
		if i > 0 {
			if err := d.sleep(ctx, d.opts.Delay); err != nil {
				return uploaded, fatal("upload", err)
			}
		}

		if d.uploadFile(ctx, file) {
			uploaded = append(uploaded, file)
		}
		bar.Increment()
	}
	return uploaded, nil
}

func (d *Driver) uploadFile(ctx context.Context, file models.SyntheticFile) bool {
	log := d.log.With().Str("key", file.Name).Logger()
	log.Info().Int64("size", file.Size).Msg("uploading")

	opts := storage.PutOptions{
		ContentType: storage.ContentTypeFor(file.Name),
		Metadata: map[string]string{
			"demo-app":    DemoApp,
			"file-size":   strconv.FormatInt(file.Size, 10),
			"upload-time": time.Now().Format(time.RFC3339),
			"run-id":      d.runID,
			"digest":      file.Digest,
		},
	}

	started := time.Now()
	_, err := d.store.PutFile(ctx, d.opts.Bucket, file.Name, file.LocalPath, opts)
	d.record(storage.OpPutObject, file.Name, file.Size, started, err, models.OutcomeFailed)
	if err != nil {
		d.warn().Err(err).Str("key", file.Name).Msg("error uploading file")
		return false
	}
	log.Info().Msg("uploaded")

	if err := os.Remove(file.LocalPath); err != nil {
		d.warn().Err(err).Str("path", file.LocalPath).Msg("could not delete local file")
	} else {
		log.Debug().Str("path", file.LocalPath).Msg("deleted local file")
	}
	return true
}

// ListObjects lists the whole bucket recursively, then the objects under
// the configured prefix. Both failures are warnings.
func (d *Driver) ListObjects(ctx context.Context) ([]models.ObjectRecord, int) {
	bucket := d.opts.Bucket
	d.log.Info().Str("bucket", bucket).Msg("listing objects")

	started := time.Now()
	objects, err := d.store.ListObjects(ctx, bucket, "", true)
	d.record(storage.OpListObjects, "", 0, started, err, models.OutcomeWarn)
	if err != nil {
		d.warn().Err(err).Msg("error listing objects")
		objects = nil
	}
	for _, o := range objects {
		d.log.Info().Msgf("   - %s (%d bytes, modified: %s)", o.Key, o.Size, o.LastModified.Format(time.RFC3339))
	}

	prefix := d.opts.ListPrefix
	started = time.Now()
	prefixed, err := d.store.ListObjects(ctx, bucket, prefix, false)
	d.record(storage.OpListObjects, prefix, 0, started, err, models.OutcomeWarn)
	if err != nil {
		d.warn().Err(err).Str("prefix", prefix).Msg("error listing objects by prefix")
		prefixed = nil
	}

	d.log.Info().Int("total", len(objects)).Int("with_prefix", len(prefixed)).Str("prefix", prefix).Msg("listing done")
	return objects, len(prefixed)
}

// DownloadSubset fetches the first min(limit, len(files)) files back into
// the download directory and checks them against the generated content.
func (d *Driver) DownloadSubset(ctx context.Context, files []models.SyntheticFile, limit int) ([]string, error) {
	n := min(limit, len(files))
	bar := d.newBar("download", n)
	defer bar.Finish()

	var downloaded []string
	for i := 0; i < n; i++ {
		if i > 0 {
			if err := d.sleep(ctx, d.opts.Delay); err != nil {
				return downloaded, fatal("download", err)
			}
		}

		if path, ok := d.downloadFile(ctx, files[i]); ok {
			downloaded = append(downloaded, path)
		}
		bar.Increment()
	}
	return downloaded, nil
}

func (d *Driver) downloadFile(ctx context.Context, file models.SyntheticFile) (string, bool) {
	downloadPath := filepath.Join(d.opts.DownloadDir, "downloaded_"+filepath.Base(file.Name))
	d.log.Info().Str("key", file.Name).Msg("downloading")

	started := time.Now()
	err := d.store.GetFile(ctx, d.opts.Bucket, file.Name, downloadPath)
	d.record(storage.OpGetObject, file.Name, file.Size, started, err, models.OutcomeFailed)
	if err != nil {
		d.warn().Err(err).Str("key", file.Name).Msg("error downloading file")
		return "", false
	}

	digest, size, err := generator.DigestFile(downloadPath)
	switch {
	case err != nil:
		d.warn().Err(err).Str("path", downloadPath).Msg("could not verify downloaded file")
	case size != file.Size || digest != file.Digest:
		d.warn().Str("key", file.Name).
			Int64("expected_size", file.Size).Int64("actual_size", size).
			Msg("downloaded content does not match upload")
	default:
		d.log.Info().Str("key", file.Name).Str("path", downloadPath).Msg("downloaded and verified")
	}
	return downloadPath, true
}

// AdditionalProbes fetches the bucket policy and location and requests a
// key that does not exist. None of them can fail the run.
func (d *Driver) AdditionalProbes(ctx context.Context) {
	bucket := d.opts.Bucket
	d.log.Info().Msg("performing additional operations for audit logs")

	started := time.Now()
	policy, err := d.store.GetBucketPolicy(ctx, bucket)
	d.record(storage.OpGetBucketPolicy, "", int64(len(policy)), started, err, models.OutcomeWarn)
	switch {
	case err != nil:
		d.warn().Err(err).Msg("no bucket policy found")
	case policy == "":
		d.log.Info().Msg("bucket has no policy")
	default:
		d.log.Info().Str("policy", policy).Msg("retrieved bucket policy")
	}

	started = time.Now()
	location, err := d.store.GetBucketLocation(ctx, bucket)
	d.record(storage.OpGetBucketLocation, "", 0, started, err, models.OutcomeWarn)
	if err != nil {
		d.warn().Err(err).Msg("could not get bucket location")
	} else {
		d.log.Info().Str("location", location).Msg("bucket location")
	}

	key := d.opts.MissingKey
	started = time.Now()
	_, err = d.store.StatObject(ctx, bucket, key)
	switch {
	case storage.IsNotFound(err):
		d.record(storage.OpStatObject, key, 0, started, nil, models.OutcomeOK)
		d.log.Info().Str("key", key).Msg("requested non-existent object (generates 404 audit event)")
	case err != nil:
		d.record(storage.OpStatObject, key, 0, started, err, models.OutcomeWarn)
		d.warn().Err(err).Str("key", key).Msg("not-found probe failed")
	default:
		err = errors.New("object unexpectedly exists")
		d.record(storage.OpStatObject, key, 0, started, err, models.OutcomeWarn)
		d.warn().Str("key", key).Msg("probe key exists, no 404 was generated")
	}
}

// newBar returns a progress bar on the driver output, or a silent one
func (d *Driver) newBar(step string, total int) *pb.ProgressBar {
	bar := pb.New(total)
	if !d.opts.ShowProgress || total == 0 {
		return bar
	}
	bar.SetWriter(d.out)
	bar.SetTemplate(`{{string . "step"}} {{counters . }} {{bar . }} {{percent . }}`)
	bar.Set("step", step)
	return bar.Start()
}
