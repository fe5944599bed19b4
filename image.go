// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compute

import (
	"fmt"
	"image"
	stddraw "image/draw"
	"sync"

	"github.com/gogpu/gputypes"
	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/compute/backend"
)

// Image is a 2D image allocation on the device. Pixel data moves
// through the enqueue methods, which mirror the buffer transfer API,
// plus [Image.UploadImage] for host-side image.Image sources.
type Image struct {
	ctx  *Context
	id   backend.ImageID
	desc ImageDescriptor

	mu       sync.Mutex
	released bool
}

// Width returns the image width in pixels.
func (im *Image) Width() uint32 { return im.desc.Width }

// Height returns the image height in pixels.
func (im *Image) Height() uint32 { return im.desc.Height }

// Format returns the pixel format.
func (im *Image) Format() gputypes.TextureFormat { return im.desc.Format }

// EnqueueWrite submits an asynchronous upload of tightly packed pixel
// data covering the whole image. data must remain unmodified until the
// returned event resolves.
func (im *Image) EnqueueWrite(q *Queue, data []byte) *Event {
	ev, res := NewEvent(q)

	dev, err := im.validate(q)
	if err != nil {
		res.Resolve(err)
		return ev
	}
	handle, err := dev.EnqueueWriteImage(q.id, im.id, data)
	if err != nil {
		res.Resolve(fmt.Errorf("compute: write image: %w", err))
		return ev
	}
	res.Attach(handle)
	return ev
}

// EnqueueRead submits an asynchronous readback of the whole image into
// dst, which must hold exactly width*height*bytesPerPixel bytes and
// stay valid until the returned event resolves.
func (im *Image) EnqueueRead(q *Queue, dst []byte) *Event {
	ev, res := NewEvent(q)

	dev, err := im.validate(q)
	if err != nil {
		res.Resolve(err)
		return ev
	}
	handle, err := dev.EnqueueReadImage(q.id, im.id, dst)
	if err != nil {
		res.Resolve(fmt.Errorf("compute: read image: %w", err))
		return ev
	}
	res.Attach(handle)
	return ev
}

// UploadImage converts src to the image's dimensions and RGBA layout
// on the host, then enqueues the upload. Sources with mismatched
// dimensions are scaled with bilinear interpolation.
//
// UploadImage requires an RGBA8-layout image; other formats resolve
// the returned event with an error.
func (im *Image) UploadImage(q *Queue, src image.Image) *Event {
	if im.desc.Format != gputypes.TextureFormatRGBA8Unorm {
		ev, res := NewEvent(q)
		res.Resolve(fmt.Errorf("%w: UploadImage requires RGBA8, image is %v", ErrInvalidDimensions, im.desc.Format))
		return ev
	}

	w, h := int(im.desc.Width), int(im.desc.Height)
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))

	if b := src.Bounds(); b.Dx() == w && b.Dy() == h {
		xdraw.Draw(rgba, rgba.Bounds(), src, b.Min, stddraw.Src)
	} else {
		xdraw.BiLinear.Scale(rgba, rgba.Bounds(), src, b, stddraw.Src, nil)
	}

	return im.EnqueueWrite(q, rgba.Pix)
}

// Release destroys the image. Release is idempotent.
func (im *Image) Release() {
	im.mu.Lock()
	if im.released {
		im.mu.Unlock()
		return
	}
	im.released = true
	im.mu.Unlock()

	if dev, err := im.ctx.device(); err == nil {
		dev.DestroyImage(im.id)
	}
}

func (im *Image) validate(q *Queue) (backend.Device, error) {
	if q == nil {
		return nil, ErrNilQueue
	}
	im.mu.Lock()
	released := im.released
	im.mu.Unlock()
	if released {
		return nil, ErrReleased
	}
	return q.backendDevice()
}
