package dataset

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/YuminosukeSato/tabflow/frame"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
	"github.com/YuminosukeSato/tabflow/pkg/log"
)

// DefaultHTTPClient is used by remote sources without a Client.
var DefaultHTTPClient = &http.Client{Timeout: 60 * time.Second}

// URLSource downloads a CSV file over HTTP. Bodies ending in .gz or .xz, or
// starting with the corresponding magic bytes, are decompressed.
type URLSource struct {
	URL     string
	Options frame.ReadOptions
	Client  *http.Client
}

// Describe implements Source.
func (s *URLSource) Describe() string { return s.URL }

// Fetch implements Source.
func (s *URLSource) Fetch(ctx context.Context) (RawSource, error) {
	logger := log.GetLoggerWithName("dataset").With(log.SourceKey, s.URL)
	logger.Info("Downloading dataset")

	body, err := httpGet(ctx, s.Client, s.URL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	r, err := decompress(bufio.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "decompress %s", s.URL)
	}
	f, err := frame.ReadCSV(r, s.Options)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", s.URL)
	}
	logger.Info("Dataset downloaded", log.SamplesKey, f.Len(), log.FeaturesKey, f.Width())
	return Table{Frame: f}, nil
}

func httpGet(ctx context.Context, client *http.Client, rawURL string) (io.ReadCloser, error) {
	if client == nil {
		client = DefaultHTTPClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "build request for %s", rawURL)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", rawURL)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, errors.Newf("GET %s: status %d: %s", rawURL, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return resp.Body, nil
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// decompress sniffs the stream header and unwraps gzip or xz.
func decompress(r *bufio.Reader) (io.Reader, error) {
	if head, _ := r.Peek(len(xzMagic)); bytes.HasPrefix(head, xzMagic) {
		return xz.NewReader(r)
	}
	if head, _ := r.Peek(len(gzipMagic)); bytes.HasPrefix(head, gzipMagic) {
		return gzip.NewReader(r)
	}
	return r, nil
}

// DefaultOpenMLURL is the public OpenML endpoint.
const DefaultOpenMLURL = "https://www.openml.org"

// OpenMLSource fetches a dataset by name and version from OpenML.
type OpenMLSource struct {
	Name    string
	Version int
	BaseURL string
	Client  *http.Client
}

// Describe implements Source.
func (s *OpenMLSource) Describe() string {
	return fmt.Sprintf("openml:%s@%d", s.Name, s.Version)
}

type openMLList struct {
	Data struct {
		Dataset []struct {
			DID     int    `json:"did"`
			Name    string `json:"name"`
			Version int    `json:"version"`
			FileID  int    `json:"file_id"`
		} `json:"dataset"`
	} `json:"data"`
}

// Fetch resolves the dataset id through the list API and downloads its CSV.
func (s *OpenMLSource) Fetch(ctx context.Context) (RawSource, error) {
	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		base = DefaultOpenMLURL
	}
	version := s.Version
	if version <= 0 {
		version = 1
	}
	logger := log.GetLoggerWithName("dataset").With(log.SourceKey, s.Describe())

	listURL := fmt.Sprintf("%s/api/v1/json/data/list/data_name/%s/data_version/%d",
		base, url.PathEscape(s.Name), version)
	body, err := httpGet(ctx, s.Client, listURL)
	if err != nil {
		return nil, err
	}
	var list openMLList
	err = json.NewDecoder(body).Decode(&list)
	_ = body.Close()
	if err != nil {
		return nil, errors.Wrapf(err, "decode OpenML listing for %s", s.Name)
	}
	if len(list.Data.Dataset) == 0 {
		return nil, errors.NewSourceFormatError(s.Describe(), "no dataset in OpenML listing")
	}
	ds := list.Data.Dataset[0]
	logger.Info("Resolved OpenML dataset", "did", ds.DID, "file_id", ds.FileID)

	src := &URLSource{
		URL:    fmt.Sprintf("%s/data/v1/get_csv/%d", base, ds.FileID),
		Client: s.Client,
	}
	return src.Fetch(ctx)
}
