package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/users"

	"github.com/kylenessen/ramble/internal/config"
	"github.com/kylenessen/ramble/internal/faults"
	"github.com/kylenessen/ramble/internal/logger"
	"github.com/kylenessen/ramble/internal/types"
)

// Dropbox is the production Store backed by the Dropbox API. The file's
// location in Dropbox is the durable state marker; there is no separate
// state store.
type Dropbox struct {
	client files.Client
	userc  users.Client
	root   string
	now    func() time.Time
	log    *logger.Logger
}

// NewDropbox builds a Dropbox store from config.
func NewDropbox(cfg config.DropboxConfig) *Dropbox {
	dcfg := dropbox.Config{
		Token:    cfg.AccessToken,
		LogLevel: dropbox.LogOff,
	}
	return &Dropbox{
		client: files.New(dcfg),
		userc:  users.New(dcfg),
		root:   strings.TrimSuffix(cfg.RootFolder, "/"),
		now:    time.Now,
		log:    logger.New(),
	}
}

// CheckConnection verifies the access token by fetching the current account.
func (d *Dropbox) CheckConnection() error {
	acct, err := d.userc.GetCurrentAccount()
	if err != nil {
		return fmt.Errorf("dropbox connection check: %w", err)
	}
	d.log.WithField("account", acct.Email).Info("connected to Dropbox")
	return nil
}

func (d *Dropbox) ListPending(ctx context.Context) ([]types.PendingItem, error) {
	inbox := d.folder(FolderInbox)

	res, err := d.client.ListFolder(files.NewListFolderArg(inbox))
	if err != nil {
		if isPathNotFound(err) {
			d.log.WithField("path", inbox).Warn("inbox folder not found")
			return nil, nil
		}
		return nil, faults.Transport("storage.list", err)
	}

	var items []types.PendingItem
	for {
		for _, entry := range res.Entries {
			md, ok := entry.(*files.FileMetadata)
			if !ok || !IsAudioFile(md.Name) {
				continue
			}
			created := md.ServerModified
			if ts, ok := RecordingTimeFromName(md.Name, d.now()); ok {
				created = ts
			}
			items = append(items, types.PendingItem{
				Name:        md.Name,
				Path:        md.PathDisplay,
				Size:        int64(md.Size),
				CreatedTime: created,
				ID:          md.Id,
			})
		}
		if !res.HasMore {
			break
		}
		res, err = d.client.ListFolderContinue(files.NewListFolderContinueArg(res.Cursor))
		if err != nil {
			return nil, faults.Transport("storage.list", err)
		}
	}
	return items, nil
}

func (d *Dropbox) Claim(ctx context.Context, item types.PendingItem) (string, error) {
	dst := d.folder(FolderProcessing) + "/" + item.Name
	if _, err := d.client.MoveV2(files.NewRelocationArg(item.Path, dst)); err != nil {
		if isSourceNotFound(err) {
			return "", faults.ClaimConflict("storage.claim", err)
		}
		return "", faults.Transport("storage.claim", err)
	}
	d.log.WithItem(item.Name).Info("moved to processing")
	return dst, nil
}

func (d *Dropbox) Download(ctx context.Context, location, filename string) (string, error) {
	workDir := filepath.Join(os.TempDir(), "ramble")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", faults.Transport("storage.download", err)
	}
	local := filepath.Join(workDir, filename)

	_, content, err := d.client.Download(files.NewDownloadArg(location))
	if err != nil {
		return "", faults.Transport("storage.download", err)
	}
	defer content.Close()

	out, err := os.Create(local)
	if err != nil {
		return "", faults.Transport("storage.download", err)
	}
	if _, err := io.Copy(out, content); err != nil {
		out.Close()
		return "", faults.Transport("storage.download", err)
	}
	if err := out.Close(); err != nil {
		return "", faults.Transport("storage.download", err)
	}
	d.log.WithItem(filename).WithField("local_path", local).Info("downloaded for processing")
	return local, nil
}

func (d *Dropbox) Upload(ctx context.Context, localPath, location string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return faults.Transport("storage.upload", err)
	}
	defer f.Close()

	arg := files.NewUploadArg(location)
	arg.Mode = &files.WriteMode{Tagged: dropbox.Tagged{Tag: files.WriteModeOverwrite}}
	if _, err := d.client.Upload(arg, f); err != nil {
		return faults.Transport("storage.upload", err)
	}
	return nil
}

func (d *Dropbox) Delete(ctx context.Context, location string) error {
	if _, err := d.client.DeleteV2(files.NewDeleteArg(location)); err != nil {
		return faults.Transport("storage.delete", err)
	}
	return nil
}

func (d *Dropbox) MarkFailed(ctx context.Context, item types.PendingItem) error {
	return d.moveToFailed(item.Path, item.Name)
}

func (d *Dropbox) MarkFailedFrom(ctx context.Context, processingLocation string) error {
	return d.moveToFailed(processingLocation, path.Base(processingLocation))
}

func (d *Dropbox) moveToFailed(from, name string) error {
	dst := d.folder(FolderFailed) + "/" + name
	if _, err := d.client.MoveV2(files.NewRelocationArg(from, dst)); err != nil {
		return faults.Transport("storage.mark_failed", err)
	}
	d.log.WithItem(name).Warn("moved to failed")
	return nil
}

func (d *Dropbox) ProcessedPath(parts ...string) string {
	return d.folder(FolderProcessed) + "/" + strings.Join(parts, "/")
}

func (d *Dropbox) folder(name string) string {
	return d.root + "/" + name
}

// isPathNotFound matches a list call against a folder that does not exist.
func isPathNotFound(err error) bool {
	var apiErr files.ListFolderAPIError
	if errors.As(err, &apiErr) {
		return apiErr.EndpointError != nil &&
			apiErr.EndpointError.Path != nil &&
			apiErr.EndpointError.Path.Tag == files.LookupErrorNotFound
	}
	return false
}

// isSourceNotFound matches a move whose source vanished before the call.
func isSourceNotFound(err error) bool {
	var apiErr files.MoveV2APIError
	if errors.As(err, &apiErr) {
		return apiErr.EndpointError != nil &&
			apiErr.EndpointError.FromLookup != nil &&
			apiErr.EndpointError.FromLookup.Tag == files.LookupErrorNotFound
	}
	return false
}
