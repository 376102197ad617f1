package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	apperrors "emspulse/internal/errors"
)

// directDownloadURL is the public endpoint for files shared with
// "anyone with the link".
const directDownloadURL = "https://drive.google.com/uc?export=download&id="

// ExtractFileID pulls the file identifier out of a Google Drive share link.
// Both common shapes are accepted:
//
//	https://drive.google.com/open?id=<ID>
//	https://drive.google.com/file/d/<ID>/view?usp=sharing
func ExtractFileID(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", apperrors.NewLinkError("share link is empty")
	}

	if idx := strings.LastIndex(link, "id="); idx >= 0 {
		id := link[idx+len("id="):]
		if amp := strings.IndexByte(id, '&'); amp >= 0 {
			id = id[:amp]
		}
		if id == "" {
			return "", apperrors.NewLinkError("share link has an empty id parameter").
				WithContext("link", link)
		}
		return id, nil
	}

	if idx := strings.Index(link, "/d/"); idx >= 0 {
		id := link[idx+len("/d/"):]
		if slash := strings.IndexByte(id, '/'); slash >= 0 {
			id = id[:slash]
		}
		if q := strings.IndexByte(id, '?'); q >= 0 {
			id = id[:q]
		}
		if id == "" {
			return "", apperrors.NewLinkError("share link has an empty file segment").
				WithContext("link", link)
		}
		return id, nil
	}

	return "", apperrors.NewLinkError("link is not a recognized Drive share link").
		WithContext("link", link)
}

// fetch downloads a Drive file. With an API key configured the Drive API is
// used, which also yields the original filename; otherwise the public
// direct-download URL is used and the name is unknown.
func (l *Loader) fetch(ctx context.Context, fileID string) (name string, data []byte, err error) {
	if l.cfg.GoogleAPIKey != "" {
		return l.fetchViaAPI(ctx, fileID)
	}
	data, err = l.fetchDirect(ctx, fileID)
	return "", data, err
}

func (l *Loader) fetchDirect(ctx context.Context, fileID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, directDownloadURL+fileID, nil)
	if err != nil {
		return nil, apperrors.NewFetchError("failed to build download request", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, apperrors.NewFetchError("download failed", err).
			WithContext("file_id", fileID)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.NewFetchError(
			fmt.Sprintf("download returned status %d", resp.StatusCode), nil).
			WithContext("file_id", fileID)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewFetchError("failed to read download body", err).
			WithContext("file_id", fileID)
	}
	return data, nil
}

func (l *Loader) fetchViaAPI(ctx context.Context, fileID string) (string, []byte, error) {
	svc, err := drive.NewService(ctx, option.WithAPIKey(l.cfg.GoogleAPIKey))
	if err != nil {
		return "", nil, apperrors.NewFetchError("failed to create drive client", err)
	}

	meta, err := svc.Files.Get(fileID).Fields("name", "size").Context(ctx).Do()
	if err != nil {
		return "", nil, apperrors.NewFetchError("failed to fetch file metadata", err).
			WithContext("file_id", fileID)
	}

	resp, err := svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return "", nil, apperrors.NewFetchError("failed to download file", err).
			WithContext("file_id", fileID)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, apperrors.NewFetchError("failed to read download body", err).
			WithContext("file_id", fileID)
	}
	return meta.Name, data, nil
}
