/*
DESCRIPTION
  proxy.go provides Proxy, which runs an algorithm host on an isolated
  worker. Events are serialised into a pool buffer and decoded by the
  worker so that the host shares no memory with the pipeline beyond the
  results it reports.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package proxy runs an algorithm host behind a serialising event queue.
package proxy

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/ausocean/camstack/buffer"
	"github.com/ausocean/camstack/ipa"
	"github.com/ausocean/utils/logging"
	"github.com/ausocean/utils/pool"
)

const pkg = "proxy: "

// Defaults used when New is given zero values.
const (
	DefaultChunks    = 64
	DefaultChunkSize = 256
	DefaultTimeout   = 10 * time.Millisecond
)

// ErrOverrun is returned when the event queue is full and an unprocessed
// event was dropped.
var ErrOverrun = errors.New("event queue overrun")

// actionsLen is the capacity of the proxy's action channel.
const actionsLen = 32

// Proxy implements ipa.Interface by forwarding events to an inner host on
// a worker goroutine.
type Proxy struct {
	log     logging.Logger
	inner   ipa.Interface
	buf     *pool.Buffer
	timeout time.Duration

	actions  chan ipa.Action
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New returns a Proxy for inner and starts its worker. Events are queued
// in chunks buffers of chunkSize bytes; the worker polls the queue every
// timeout.
func New(log logging.Logger, inner ipa.Interface, chunks, chunkSize int, timeout time.Duration) *Proxy {
	if chunks <= 0 {
		chunks = DefaultChunks
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p := &Proxy{
		log:     log,
		inner:   inner,
		buf:     pool.NewBuffer(chunks, chunkSize, timeout),
		timeout: timeout,
		actions: make(chan ipa.Action, actionsLen),
		done:    make(chan struct{}),
	}
	p.wg.Add(2)
	go p.work()
	go p.forward()
	return p
}

// Configure implements ipa.Interface. It runs synchronously.
func (p *Proxy) Configure(c ipa.Config) error { return p.inner.Configure(c) }

// MapBuffers implements ipa.Interface. It runs synchronously.
func (p *Proxy) MapBuffers(bufs []*buffer.Buffer) error { return p.inner.MapBuffers(bufs) }

// UnmapBuffers implements ipa.Interface.
func (p *Proxy) UnmapBuffers(ids []uint32) { p.inner.UnmapBuffers(ids) }

// Actions implements ipa.Interface.
func (p *Proxy) Actions() <-chan ipa.Action { return p.actions }

// ProcessEvent implements ipa.Interface. The event is queued for the worker
// and any error from the host is reported as an ActionError.
func (p *Proxy) ProcessEvent(e ipa.Event) error {
	select {
	case <-p.done:
		return errors.New("proxy stopped")
	default:
	}

	b, err := cbor.Marshal(e)
	if err != nil {
		return fmt.Errorf("could not encode event: %w", err)
	}
	_, err = p.buf.Write(b)
	switch err {
	case nil:
	case pool.ErrDropped:
		p.buf.Flush()
		return fmt.Errorf("%w: frame %d", ErrOverrun, e.Frame)
	default:
		return fmt.Errorf("could not queue event: %w", err)
	}
	p.buf.Flush()
	return nil
}

// Stop implements ipa.Interface. Queued events not yet taken by the worker
// are discarded.
func (p *Proxy) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.inner.Stop()
		p.wg.Wait()
		p.log.Debug(pkg + "stopped")
	})
}

// work decodes queued events and hands them to the host.
func (p *Proxy) work() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		default:
		}

		chunk, err := p.buf.Next(p.timeout)
		switch err {
		case nil:
		case io.EOF, pool.ErrTimeout:
			continue
		default:
			p.log.Error(pkg+"unexpected error from Next", "error", err.Error())
			continue
		}

		var e ipa.Event
		err = cbor.Unmarshal(chunk.Bytes(), &e)
		chunk.Close()
		if err != nil {
			p.report(ipa.Action{Type: ipa.ActionError, Err: fmt.Errorf("could not decode event: %w", err)})
			continue
		}
		err = p.inner.ProcessEvent(e)
		if err != nil {
			p.log.Error(pkg+"host rejected event", "frame", e.Frame, "type", e.Type.String(), "error", err)
			p.report(ipa.Action{Type: ipa.ActionError, Frame: e.Frame, Err: err})
		}
	}
}

// forward relays the host's actions.
func (p *Proxy) forward() {
	defer p.wg.Done()
	in := p.inner.Actions()
	for {
		select {
		case <-p.done:
			return
		case a := <-in:
			p.report(a)
		}
	}
}

func (p *Proxy) report(a ipa.Action) {
	select {
	case p.actions <- a:
	case <-p.done:
	}
}
