package latex

import (
	"sync"

	"git.home.luguber.info/inful/latexbuilder/internal/engine"
)

type preparation struct {
	req       engine.Request
	dl        *downloader
	userError string
}

func (p *preparation) Request() engine.Request { return p.req }

func (p *preparation) Downloader() engine.Downloader {
	if p.dl == nil {
		return nil
	}
	return p.dl
}

func (p *preparation) UserError() string { return p.userError }

// downloader owns one cloned checkout. The directory is removed exactly once.
type downloader struct {
	dir    string
	remove func() error

	once sync.Once
	err  error
}

func (d *downloader) Dir() string { return d.dir }

func (d *downloader) Dispose() error {
	d.once.Do(func() {
		if d.remove != nil {
			d.err = d.remove()
		}
	})
	return d.err
}
