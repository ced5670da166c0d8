package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fieldstock/internal/model"
)

// Fetcher defines the interface for downloading a remote report.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Loader resolves a report location (local path, http(s) or ftp URL) and
// parses it into a Table.
type Loader struct {
	HTTP Fetcher
	FTP  Fetcher
}

// NewLoader creates a Loader with default HTTP and FTP fetchers.
func NewLoader(httpOpts HTTPOptions, ftpOpts FTPOptions) *Loader {
	return &Loader{
		HTTP: NewHTTPFetcher(httpOpts),
		FTP:  NewFTPFetcher(ftpOpts),
	}
}

// LoadOptions selects how a report is parsed.
type LoadOptions struct {
	Sheet string // worksheet name for XLSX; empty reads the first sheet
}

// Load fetches location if it is remote and parses it by file extension:
// .xlsx is read as a workbook, anything else as delimited text.
func (l *Loader) Load(ctx context.Context, location string, opts LoadOptions) (*model.Table, error) {
	local, cleanup, err := l.materialize(ctx, location)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return LoadFile(local, location, opts)
}

// LoadFile parses a local report file. source names the report in the
// resulting Table and decides the format by its extension.
func LoadFile(local, source string, opts LoadOptions) (*model.Table, error) {
	if isXLSX(source) {
		return ReadXLSX(local, XLSXOptions{SheetName: opts.Sheet, Source: source})
	}

	f, err := os.Open(local)
	if err != nil {
		return nil, eris.Wrapf(err, "open report %s", source)
	}
	defer f.Close() //nolint:errcheck

	return ReadCSV(f, CSVOptions{Source: source})
}

// materialize returns a local path for location, downloading remote reports
// to a temporary file that cleanup removes.
func (l *Loader) materialize(ctx context.Context, location string) (string, func(), error) {
	noop := func() {}

	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain path; single-letter schemes are Windows drive letters.
		if _, statErr := os.Stat(location); statErr != nil {
			return "", noop, eris.Wrapf(statErr, "report %s", location)
		}
		return location, noop, nil
	}

	var f Fetcher
	switch u.Scheme {
	case "http", "https":
		f = l.HTTP
	case "ftp":
		f = l.FTP
	default:
		return "", noop, eris.Errorf("unsupported report scheme %q", u.Scheme)
	}
	if f == nil {
		return "", noop, eris.Errorf("no fetcher configured for %s", u.Scheme)
	}

	tmp, err := os.CreateTemp("", "report-*"+path.Ext(u.Path))
	if err != nil {
		return "", noop, eris.Wrap(err, "create temp file")
	}
	_ = tmp.Close()
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	n, err := f.DownloadToFile(ctx, location, tmp.Name())
	if err != nil {
		cleanup()
		return "", noop, eris.Wrapf(err, "fetch report %s", location)
	}
	zap.L().Info("fetcher: report downloaded",
		zap.String("location", location),
		zap.Int64("bytes", n),
	)
	return tmp.Name(), cleanup, nil
}

func isXLSX(name string) bool {
	if u, err := url.Parse(name); err == nil && u.Path != "" {
		name = u.Path
	}
	return strings.EqualFold(filepath.Ext(name), ".xlsx")
}

func writeFile(path string, r io.Reader) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, r)
	if err != nil {
		return n, eris.Wrap(err, "write file")
	}
	return n, nil
}
