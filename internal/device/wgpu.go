//go:build !nogpu

package device

import (
	"fmt"

	"github.com/23skdu/longbow-padcheck/internal/metrics"
	"github.com/23skdu/longbow-padcheck/internal/shader"
	"github.com/rajveermalviya/go-webgpu/wgpu"
)

// WGPU drives a real adapter through wgpu-native.
type WGPU struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
}

func Available() bool { return true }

// NewWGPU acquires the default adapter and a device on it, blocking until
// both requests complete.
func NewWGPU() (*WGPU, error) {
	instance := wgpu.CreateInstance(nil)

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: %v", ErrNoAdapter, err)
	}

	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}

	return &WGPU{
		instance: instance,
		adapter:  adapter,
		device:   dev,
		queue:    dev.GetQueue(),
	}, nil
}

func (g *WGPU) Name() string { return "wgpu" }

func (g *WGPU) Close() {
	if g.device != nil {
		g.device.Release()
		g.device = nil
	}
	if g.adapter != nil {
		g.adapter.Release()
		g.adapter = nil
	}
	if g.instance != nil {
		g.instance.Release()
		g.instance = nil
	}
}

func (g *WGPU) RoundTrip(prog *shader.Program, input []byte) ([]byte, error) {
	if err := checkInput(g.Name(), prog, input); err != nil {
		return nil, err
	}
	size := uint64(len(input))
	t := newPhaseTimer(g.Name())

	// Host-visible staging copy of the guard pattern.
	inputBuf, err := g.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            "input",
		Size:             size,
		Usage:            wgpu.BufferUsage_CopySrc,
		MappedAtCreation: true,
	})
	if err != nil {
		return nil, t.fail(err)
	}
	defer inputBuf.Release()
	mapped := inputBuf.GetMappedRange(0, uint(size))
	if len(mapped) != len(input) {
		inputBuf.Unmap()
		return nil, t.fail(fmt.Errorf("%w: input mapped %d of %d bytes", ErrMapFailed, len(mapped), size))
	}
	copy(mapped, input)
	inputBuf.Unmap()
	metrics.RecordBuffer("input", len(input))

	t.next(PhaseAllocate)
	storageBuf, err := g.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "storage",
		Size:  size,
		Usage: wgpu.BufferUsage_Storage | wgpu.BufferUsage_CopySrc | wgpu.BufferUsage_CopyDst,
	})
	if err != nil {
		return nil, t.fail(err)
	}
	defer storageBuf.Release()
	metrics.RecordBuffer("storage", len(input))

	outputBuf, err := g.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "output",
		Size:  size,
		Usage: wgpu.BufferUsage_CopyDst | wgpu.BufferUsage_MapRead,
	})
	if err != nil {
		return nil, t.fail(err)
	}
	defer outputBuf.Release()
	metrics.RecordBuffer("output", len(input))

	t.next(PhaseBind)
	module, err := g.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          prog.Params.String(),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: prog.Source},
	})
	if err != nil {
		return nil, t.fail(fmt.Errorf("CreateShaderModule: %w", err))
	}
	defer module.Release()

	bgl, err := g.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "padcheck_bgl",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    shader.Binding,
				Visibility: wgpu.ShaderStage_Compute,
				Buffer: wgpu.BufferBindingLayout{
					Type: wgpu.BufferBindingType_Storage,
				},
			},
		},
	})
	if err != nil {
		return nil, t.fail(err)
	}
	defer bgl.Release()

	pl, err := g.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "padcheck_pl",
		BindGroupLayouts: []*wgpu.BindGroupLayout{bgl},
	})
	if err != nil {
		return nil, t.fail(err)
	}
	defer pl.Release()

	pipeline, err := g.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  "padcheck_pipeline",
		Layout: pl,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: prog.EntryPoint,
		},
	})
	if err != nil {
		return nil, t.fail(fmt.Errorf("CreateComputePipeline: %w", err))
	}
	defer pipeline.Release()

	bg, err := g.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "padcheck_bg",
		Layout: bgl,
		Entries: []wgpu.BindGroupEntry{
			{Binding: shader.Binding, Buffer: storageBuf, Offset: 0, Size: size},
		},
	})
	if err != nil {
		return nil, t.fail(err)
	}
	defer bg.Release()

	t.next(PhaseEncode)
	enc, err := g.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, t.fail(err)
	}
	defer enc.Release()

	// copy-in, dispatch and copy-out share one encoder so the queue orders them
	enc.CopyBufferToBuffer(inputBuf, 0, storageBuf, 0, size)
	pass := enc.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(shader.Group, bg, nil)
	pass.DispatchWorkgroups(1, 1, 1)
	pass.End()
	enc.CopyBufferToBuffer(storageBuf, 0, outputBuf, 0, size)

	cmd, err := enc.Finish(nil)
	if err != nil {
		return nil, t.fail(err)
	}
	defer cmd.Release()

	t.next(PhaseSubmit)
	g.queue.Submit(cmd)

	t.next(PhaseReadback)
	out, err := g.readback(outputBuf, size)
	if err != nil {
		return nil, t.fail(err)
	}
	t.done()
	return out, nil
}

// readback maps buf for reading and blocks until the device has finished all
// submitted work.
func (g *WGPU) readback(buf *wgpu.Buffer, size uint64) ([]byte, error) {
	done := make(chan wgpu.BufferMapAsyncStatus, 1)
	err := buf.MapAsync(wgpu.MapMode_Read, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		done <- status
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMapFailed, err)
	}

	var status wgpu.BufferMapAsyncStatus
	for waiting := true; waiting; {
		g.device.Poll(true, nil)
		select {
		case status = <-done:
			waiting = false
		default:
		}
	}
	if status != wgpu.BufferMapAsyncStatus_Success {
		return nil, fmt.Errorf("%w: status %v", ErrMapFailed, status)
	}

	data := buf.GetMappedRange(0, uint(size))
	if uint64(len(data)) != size {
		buf.Unmap()
		return nil, fmt.Errorf("%w: mapped %d of %d bytes", ErrMapFailed, len(data), size)
	}
	out := make([]byte, size)
	copy(out, data)
	buf.Unmap()
	return out, nil
}
