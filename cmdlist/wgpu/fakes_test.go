package wgpu

import (
	"sync"
	"time"

	"github.com/gogpu/wgpu/hal"
	"github.com/vkngwrapper/cmdtrack/cmdlist"
	"github.com/vkngwrapper/cmdtrack/cmdutils/state"
)

type fakeCommandBuffer struct {
	hal.CommandBuffer

	label           string
	textureBarriers []hal.TextureBarrier
	bufferBarriers  []hal.BufferBarrier
}

type fakeEncoder struct {
	hal.CommandEncoder

	label     string
	encoding  bool
	begins    int
	ends      int
	discards  int
	destroyed bool
	current   *fakeCommandBuffer
	endErr    error
	beginErr  error
}

func (e *fakeEncoder) BeginEncoding(label string) error {
	if e.beginErr != nil {
		return e.beginErr
	}

	e.begins++
	e.encoding = true
	e.current = &fakeCommandBuffer{label: label}
	return nil
}

func (e *fakeEncoder) EndEncoding() (hal.CommandBuffer, error) {
	if e.endErr != nil {
		return nil, e.endErr
	}

	e.ends++
	e.encoding = false

	commandBuffer := e.current
	e.current = nil
	return commandBuffer, nil
}

func (e *fakeEncoder) DiscardEncoding() {
	e.discards++
	e.encoding = false
	e.current = nil
}

func (e *fakeEncoder) Destroy() {
	e.destroyed = true
}

func (e *fakeEncoder) TransitionTextures(barriers []hal.TextureBarrier) {
	e.current.textureBarriers = append(e.current.textureBarriers, barriers...)
}

func (e *fakeEncoder) TransitionBuffers(barriers []hal.BufferBarrier) {
	e.current.bufferBarriers = append(e.current.bufferBarriers, barriers...)
}

type fakeFence struct {
	hal.Fence
}

type fakeDevice struct {
	mutex sync.Mutex

	encoders       []*fakeEncoder
	beginErr       error
	freed          []hal.CommandBuffer
	fences         []*fakeFence
	destroyed      int
	completedValue uint64
	waits          int
}

var _ Device = &fakeDevice{}

func (d *fakeDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	encoder := &fakeEncoder{label: desc.Label, beginErr: d.beginErr}
	d.encoders = append(d.encoders, encoder)
	return encoder, nil
}

func (d *fakeDevice) FreeCommandBuffer(commandBuffer hal.CommandBuffer) {
	d.freed = append(d.freed, commandBuffer)
}

func (d *fakeDevice) CreateFence() (hal.Fence, error) {
	fence := &fakeFence{}
	d.fences = append(d.fences, fence)
	return fence, nil
}

func (d *fakeDevice) DestroyFence(fence hal.Fence) {
	d.destroyed++
}

func (d *fakeDevice) Wait(fence hal.Fence, value uint64, timeout time.Duration) (bool, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.waits++
	return d.completedValue >= value, nil
}

func (d *fakeDevice) Complete(value uint64) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.completedValue = value
}

func (d *fakeDevice) Waits() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.waits
}

type submission struct {
	commandBuffers []hal.CommandBuffer
	fence          hal.Fence
	value          uint64
}

type fakeQueue struct {
	submissions []submission
	err         error
}

var _ SubmitQueue = &fakeQueue{}

func (q *fakeQueue) Submit(commandBuffers []hal.CommandBuffer, fence hal.Fence, fenceValue uint64) error {
	if q.err != nil {
		return q.err
	}

	q.submissions = append(q.submissions, submission{
		commandBuffers: append([]hal.CommandBuffer(nil), commandBuffers...),
		fence:          fence,
		value:          fenceValue,
	})
	return nil
}

type fakeHALTexture struct {
	hal.Texture
}

type fakeTexture struct {
	state.TrackedResource

	texture *fakeHALTexture
}

var _ Texture = &fakeTexture{}

func newFakeTexture(initialState state.ResourceStates) *fakeTexture {
	texture := &fakeTexture{texture: &fakeHALTexture{}}
	texture.InitTracking(1, initialState, true)
	return texture
}

func (t *fakeTexture) HALTexture() hal.Texture {
	return t.texture
}

func (t *fakeTexture) UpdateResidency(commandList cmdlist.Handle) {
	commandList.UpdateResidency(t)
}

type fakeHALBuffer struct {
	hal.Buffer
}

type fakeBuffer struct {
	state.TrackedResource

	buffer *fakeHALBuffer
}

var _ Buffer = &fakeBuffer{}

func newFakeBuffer(initialState state.ResourceStates) *fakeBuffer {
	buffer := &fakeBuffer{buffer: &fakeHALBuffer{}}
	buffer.InitTracking(1, initialState, true)
	return buffer
}

func (b *fakeBuffer) HALBuffer() hal.Buffer {
	return b.buffer
}

func (b *fakeBuffer) UpdateResidency(commandList cmdlist.Handle) {
	commandList.UpdateResidency(b)
}
