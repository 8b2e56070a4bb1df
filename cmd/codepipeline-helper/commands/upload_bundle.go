package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// PutObjectAPI uploads an object. Implemented by *s3.Client.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

func UploadBundleCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "upload-bundle",
		Usage: "Upload the custom resource Lambda bundle to S3",
		Description: `Uploads the built Lambda zip under the commit it was built from.

The bundle is written to <bucket>/<prefix>/<sha>.zip, where sha is the HEAD
commit of the repository containing the working directory. When HEAD is
exactly tagged the bundle is also written to <bucket>/<prefix>/<tag>.zip.
Objects are uploaded public-read so stacks in any account can reference them.

Examples:
  codepipeline-helper upload-bundle --location my-bucket/code-pipeline-helper --file bundle.zip`,
		Flags: []cli.Flag{
			regionFlag(),
			&cli.StringFlag{
				Name:  "location",
				Usage: "destination as bucket or bucket/prefix",
				Value: "code-pipeline-helper",
			},
			&cli.PathFlag{
				Name:  "file",
				Usage: "bundle to upload",
				Value: "bundle.zip",
			},
			&cli.PathFlag{
				Name:  "repository",
				Usage: "path inside the git repository the bundle was built from",
				Value: ".",
			},
		},
		Action: func(c *cli.Context) error {
			return uploadBundleAction(c, logger)
		},
	}
}

func uploadBundleAction(c *cli.Context, logger *zerolog.Logger) error {
	bucket, prefix, err := parseLocation(c.String("location"))
	if err != nil {
		return err
	}

	data, err := os.ReadFile(c.Path("file"))
	if err != nil {
		return fmt.Errorf("failed to read bundle: %w", err)
	}

	version, err := bundleVersion(c.Path("repository"))
	if err != nil {
		return err
	}

	cfg, err := loadAWSConfig(c.Context, c.String("region"))
	if err != nil {
		return err
	}

	keys := version.keys(prefix)
	if err := uploadBundle(c.Context, s3.NewFromConfig(cfg), bucket, keys, data); err != nil {
		return err
	}

	for _, key := range keys {
		logger.Info().Str("bucket", bucket).Str("key", key).Int("bytes", len(data)).Msg("Uploaded bundle")
	}
	return nil
}

// parseLocation splits bucket/prefix. The prefix may be empty.
func parseLocation(location string) (bucket, prefix string, err error) {
	location = strings.TrimPrefix(location, "s3://")
	bucket, prefix, _ = strings.Cut(location, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid location %q: bucket is required", location)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

type version struct {
	SHA string
	Tag string
}

// keys returns the object keys the bundle is written to.
func (v version) keys(prefix string) []string {
	keys := []string{path.Join(prefix, v.SHA+".zip")}
	if v.Tag != "" {
		keys = append(keys, path.Join(prefix, v.Tag+".zip"))
	}
	return keys
}

// bundleVersion returns the HEAD commit of the repository containing dir and
// the tag pointing exactly at it, if any. When several tags match the first
// in lexical order wins.
func bundleVersion(dir string) (version, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return version{}, fmt.Errorf("failed to open git repository: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return version{}, fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	tags, err := repo.Tags()
	if err != nil {
		return version{}, fmt.Errorf("failed to list tags: %w", err)
	}

	var matches []string
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()

		tag, err := repo.TagObject(ref.Hash())
		switch {
		case err == nil:
			commit, err := tag.Commit()
			if err != nil {
				return nil
			}
			target = commit.Hash
		case !errors.Is(err, plumbing.ErrObjectNotFound):
			return err
		}

		if target == head.Hash() {
			matches = append(matches, ref.Name().Short())
		}
		return nil
	})
	if err != nil {
		return version{}, fmt.Errorf("failed to read tags: %w", err)
	}

	v := version{SHA: head.Hash().String()}
	if len(matches) > 0 {
		sort.Strings(matches)
		v.Tag = matches[0]
	}
	return v, nil
}

func uploadBundle(ctx context.Context, client PutObjectAPI, bucket string, keys []string, data []byte) error {
	for _, key := range keys {
		_, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String("application/zip"),
			ACL:           types.ObjectCannedACLPublicRead,
		})
		if err != nil {
			return fmt.Errorf("failed to upload s3://%s/%s: %w", bucket, key, err)
		}
	}
	return nil
}
