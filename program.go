package compute

import (
	"fmt"
	"sync"

	"github.com/gogpu/compute/backend"
)

// Program is a compiled compute program. Kernels are instantiated from
// its entry points with [Program.Kernel].
type Program struct {
	ctx *Context
	id  backend.ProgramID

	mu       sync.Mutex
	released bool
}

// Kernel instantiates the named entry point of the program.
func (p *Program) Kernel(name string) (*Kernel, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty kernel name", ErrInvalidSize)
	}
	p.mu.Lock()
	released := p.released
	p.mu.Unlock()
	if released {
		return nil, ErrReleased
	}

	dev, err := p.ctx.device()
	if err != nil {
		return nil, err
	}
	id, err := dev.CreateKernel(p.id, name)
	if err != nil {
		return nil, fmt.Errorf("compute: create kernel %q: %w", name, err)
	}
	return &Kernel{ctx: p.ctx, id: id, name: name}, nil
}

// Release destroys the program. Kernels already created from it remain
// valid. Release is idempotent.
func (p *Program) Release() {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return
	}
	p.released = true
	p.mu.Unlock()

	if dev, err := p.ctx.device(); err == nil {
		dev.DestroyProgram(p.id)
	}
}
