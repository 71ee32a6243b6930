package wgpu

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/wgpu/hal"
	"github.com/vkngwrapper/cmdtrack/cmdlist/driver"
	"github.com/vkngwrapper/cmdtrack/cmdutils/barrier"
)

// CommandList creates a hal.CommandEncoder for every recording. Standalone encoders are single
// use: ending or discarding one hands its resources back to the hal. The command buffer produced
// by Close is owned by the pool the list was recording into.
type CommandList struct {
	device   *CommandDevice
	label    string
	encoder  hal.CommandEncoder
	pool     *CommandBufferPool
	encoding bool

	commandBuffer hal.CommandBuffer

	textureBarriers []hal.TextureBarrier
	bufferBarriers  []hal.BufferBarrier
}

var _ driver.CommandList = &CommandList{}

// Encoder is the encoder commands are recorded into while the list is open, or nil once it has
// been closed
func (l *CommandList) Encoder() hal.CommandEncoder {
	return l.encoder
}

// CommandBuffer is the command buffer finished by the last Close
func (l *CommandList) CommandBuffer() hal.CommandBuffer {
	return l.commandBuffer
}

func (l *CommandList) Reset(allocator driver.CommandAllocator) error {
	pool, ok := allocator.(*CommandBufferPool)
	if !ok {
		return errors.Newf("wgpu command lists must record into a *wgpu.CommandBufferPool, but %T was provided", allocator)
	}

	l.discard()
	l.commandBuffer = nil

	encoder, err := l.device.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: l.label,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to create command encoder for %s", l.label)
	}

	err = encoder.BeginEncoding(l.label)
	if err != nil {
		encoder.Destroy()
		return errors.Wrap(err, "failed to begin encoding")
	}

	l.encoder = encoder
	l.pool = pool
	l.encoding = true
	return nil
}

func (l *CommandList) discard() {
	if l.encoding {
		l.encoder.DiscardEncoding()
		l.encoding = false
	}
	l.encoder = nil
}

func (l *CommandList) Close() error {
	if !l.encoding {
		return errors.New("attempted to close a command list that is not encoding")
	}

	commandBuffer, err := l.encoder.EndEncoding()
	if err != nil {
		l.discard()
		return errors.Wrap(err, "failed to end encoding")
	}

	l.encoding = false
	l.encoder = nil
	l.commandBuffer = commandBuffer
	l.pool.finished = append(l.pool.finished, commandBuffer)
	return nil
}

// ResourceBarrier issues texture and buffer usage transitions. Aliasing barriers and UAV barriers
// over all resources have no hal equivalent and are dropped.
func (l *CommandList) ResourceBarrier(barriers []barrier.Barrier) {
	l.textureBarriers = l.textureBarriers[:0]
	l.bufferBarriers = l.bufferBarriers[:0]

	for _, b := range barriers {
		switch b.Type {
		case barrier.TypeTransition:
			l.addTransition(b)
		case barrier.TypeUAV:
			l.addUAV(b)
		}
	}

	if len(l.textureBarriers) > 0 {
		l.encoder.TransitionTextures(l.textureBarriers)
	}
	if len(l.bufferBarriers) > 0 {
		l.encoder.TransitionBuffers(l.bufferBarriers)
	}
}

func (l *CommandList) addTransition(b barrier.Barrier) {
	switch resource := b.Resource.(type) {
	case Texture:
		l.textureBarriers = append(l.textureBarriers, hal.TextureBarrier{
			Texture: resource.HALTexture(),
			Usage: hal.TextureUsageTransition{
				OldUsage: TextureUsage(b.StateBefore),
				NewUsage: TextureUsage(b.StateAfter),
			},
		})
	case Buffer:
		l.bufferBarriers = append(l.bufferBarriers, hal.BufferBarrier{
			Buffer: resource.HALBuffer(),
			Usage: hal.BufferUsageTransition{
				OldUsage: BufferUsage(b.StateBefore),
				NewUsage: BufferUsage(b.StateAfter),
			},
		})
	}
}

func (l *CommandList) addUAV(b barrier.Barrier) {
	switch resource := b.Resource.(type) {
	case Texture:
		l.textureBarriers = append(l.textureBarriers, hal.TextureBarrier{
			Texture: resource.HALTexture(),
			Usage: hal.TextureUsageTransition{
				OldUsage: storageTextureUsage,
				NewUsage: storageTextureUsage,
			},
		})
	case Buffer:
		l.bufferBarriers = append(l.bufferBarriers, hal.BufferBarrier{
			Buffer: resource.HALBuffer(),
			Usage: hal.BufferUsageTransition{
				OldUsage: storageBufferUsage,
				NewUsage: storageBufferUsage,
			},
		})
	}
}

func (l *CommandList) Destroy() {
	l.discard()
	l.pool = nil
	l.commandBuffer = nil
}
