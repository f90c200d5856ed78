package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/dmitrijs2005/carekeeper/internal/common"
)

const driveFields = "id,name,parents,mimeType,createdTime"

// ClientSource hands out an authorized HTTP client per call. It returns
// common.ErrNotAuthenticated when no session exists.
type ClientSource interface {
	HTTPClient(ctx context.Context) (*http.Client, error)
}

// StaticClient is a ClientSource for an already-authorized client.
type StaticClient struct{ Client *http.Client }

func (s StaticClient) HTTPClient(context.Context) (*http.Client, error) {
	if s.Client == nil {
		return nil, common.ErrNotAuthenticated
	}
	return s.Client, nil
}

// HTTPError is a non-2xx provider response. 401 unwraps to
// common.ErrNotAuthenticated and 404 to common.ErrorNotFound.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider returned %d", e.StatusCode)
	}
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return common.ErrNotAuthenticated
	case http.StatusNotFound:
		return common.ErrorNotFound
	}
	return nil
}

// DriveClient speaks the Drive v3 REST dialect. It does not retry; callers
// decide.
type DriveClient struct {
	baseURL string
	source  ClientSource
}

func NewDriveClient(baseURL string, source ClientSource) *DriveClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://www.googleapis.com"
	}
	return &DriveClient{baseURL: baseURL, source: source}
}

type driveFile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Parents     []string  `json:"parents"`
	MimeType    string    `json:"mimeType"`
	CreatedTime time.Time `json:"createdTime"`
}

func (f driveFile) item() Item {
	it := Item{
		ID:          f.ID,
		Name:        f.Name,
		MimeType:    f.MimeType,
		Folder:      f.MimeType == FolderMimeType,
		CreatedTime: f.CreatedTime,
	}
	if len(f.Parents) > 0 {
		it.ParentID = f.Parents[0]
	}
	return it
}

type driveList struct {
	Files         []driveFile `json:"files"`
	NextPageToken string      `json:"nextPageToken"`
}

// escapeQuery quotes a value for a Drive search expression.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func buildQuery(parentID, name string, kind Kind) string {
	parts := []string{fmt.Sprintf("'%s' in parents", escapeQuery(parentID)), "trashed = false"}
	if name != "" {
		parts = append(parts, fmt.Sprintf("name = '%s'", escapeQuery(name)))
	}
	switch kind {
	case KindFolder:
		parts = append(parts, fmt.Sprintf("mimeType = '%s'", FolderMimeType))
	case KindFile:
		parts = append(parts, fmt.Sprintf("mimeType != '%s'", FolderMimeType))
	}
	return strings.Join(parts, " and ")
}

func (c *DriveClient) List(ctx context.Context, parentID, name string, kind Kind) ([]Item, error) {
	var items []Item
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("q", buildQuery(parentID, name, kind))
		q.Set("fields", "nextPageToken,files("+driveFields+")")
		q.Set("orderBy", "createdTime")
		q.Set("pageSize", "1000")
		q.Set("spaces", "drive")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var page driveList
		if err := c.doJSON(ctx, http.MethodGet, "/drive/v3/files?"+q.Encode(), nil, "", &page); err != nil {
			return nil, fmt.Errorf("list %q in %s: %w", name, parentID, err)
		}
		for _, f := range page.Files {
			it := f.item()
			if it.ParentID == "" {
				it.ParentID = parentID
			}
			items = append(items, it)
		}
		if page.NextPageToken == "" {
			return items, nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *DriveClient) CreateFolder(ctx context.Context, parentID, name string) (Item, error) {
	meta := map[string]any{
		"name":     name,
		"mimeType": FolderMimeType,
		"parents":  []string{parentID},
	}
	body, err := json.Marshal(meta)
	if err != nil {
		return Item{}, err
	}

	var out driveFile
	if err := c.doJSON(ctx, http.MethodPost, "/drive/v3/files?fields="+driveFields, body, "application/json", &out); err != nil {
		return Item{}, fmt.Errorf("create folder %q: %w", name, err)
	}
	return out.item(), nil
}

func (c *DriveClient) CreateFile(ctx context.Context, parentID, name, mimeType string, data []byte) (Item, error) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := w.CreatePart(metaHeader)
	if err != nil {
		return Item{}, err
	}
	if err := json.NewEncoder(metaPart).Encode(map[string]any{
		"name":     name,
		"mimeType": mimeType,
		"parents":  []string{parentID},
	}); err != nil {
		return Item{}, err
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", mimeType)
	mediaPart, err := w.CreatePart(mediaHeader)
	if err != nil {
		return Item{}, err
	}
	if _, err := mediaPart.Write(data); err != nil {
		return Item{}, err
	}
	if err := w.Close(); err != nil {
		return Item{}, err
	}

	var out driveFile
	path := "/upload/drive/v3/files?uploadType=multipart&fields=" + driveFields
	if err := c.doJSON(ctx, http.MethodPost, path, buf.Bytes(), "multipart/related; boundary="+w.Boundary(), &out); err != nil {
		return Item{}, fmt.Errorf("create file %q: %w", name, err)
	}
	return out.item(), nil
}

func (c *DriveClient) UpdateFile(ctx context.Context, fileID string, data []byte) error {
	path := "/upload/drive/v3/files/" + url.PathEscape(fileID) + "?uploadType=media"
	if err := c.doJSON(ctx, http.MethodPatch, path, data, "application/json", nil); err != nil {
		return fmt.Errorf("update file %s: %w", fileID, err)
	}
	return nil
}

func (c *DriveClient) Download(ctx context.Context, fileID string) ([]byte, error) {
	data, err := c.do(ctx, http.MethodGet, "/drive/v3/files/"+url.PathEscape(fileID)+"?alt=media", nil, "")
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fileID, err)
	}
	return data, nil
}

func (c *DriveClient) Delete(ctx context.Context, id string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/drive/v3/files/"+url.PathEscape(id), nil, ""); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

func (c *DriveClient) doJSON(ctx context.Context, method, requestPath string, body []byte, contentType string, out any) error {
	payload, err := c.do(ctx, method, requestPath, body, contentType)
	if err != nil {
		return err
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, out)
}

func (c *DriveClient) do(ctx context.Context, method, requestPath string, body []byte, contentType string) ([]byte, error) {
	client, err := c.source.HTTPClient(ctx)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := client.Do(req)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, fmt.Errorf("%w: token refresh rejected: %v", common.ErrNotAuthenticated, re)
		}
		return nil, err
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return payload, nil
	}

	var errPayload struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(payload, &errPayload)
	return nil, &HTTPError{StatusCode: resp.StatusCode, Message: errPayload.Error.Message}
}
