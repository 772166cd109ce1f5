package apiclient

import "io"

// progressReader сообщает процент прочитанного тела запроса.
// Колбэк вызывается только при изменении процента.
type progressReader struct {
	r          io.ReadCloser
	total      int64
	read       int64
	last       int
	onProgress func(percent int)
}

func newProgressReader(r io.ReadCloser, total int64, onProgress func(int)) *progressReader {
	return &progressReader{r: r, total: total, last: -1, onProgress: onProgress}
}

// Read реализует io.Reader
func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.read += int64(n)

	if p.total <= 0 {
		if err == io.EOF {
			p.report(100)
		}
		return n, err
	}

	p.report(int(p.read * 100 / p.total))
	return n, err
}

// Close реализует io.Closer
func (p *progressReader) Close() error {
	return p.r.Close()
}

func (p *progressReader) report(percent int) {
	if percent > 100 {
		percent = 100
	}
	if percent == p.last {
		return
	}
	p.last = percent
	p.onProgress(percent)
}
