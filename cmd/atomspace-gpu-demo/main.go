package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/opencog/atomspace-gpu/pkg/gpu"
	"github.com/sirupsen/logrus"
)

//go:embed kernels/vector_ops.cl
var kernelSources embed.FS

func main() {
	op := flag.String("op", "multiply", "Demo to run: multiply, add, accumulate, devices")
	platform := flag.String("platform", "", "Platform name substring to match (empty matches any)")
	device := flag.String("device", "", "Device name substring to match (empty matches any)")
	cacheDir := flag.String("cache-dir", "", "Binary cache root (empty uses the user home / /tmp fallback)")
	flag.Parse()

	logrus.SetLevel(logrus.InfoLevel)

	if *op == "devices" {
		listDevices()
		return
	}

	kernelPath, cleanup, err := stageKernelSource()
	if err != nil {
		logrus.Fatalf("failed to stage kernel source: %+v", err)
	}
	defer cleanup()

	engine := gpu.NewEngine()
	opts := gpu.DefaultOptions()
	opts.CacheRoot = *cacheDir

	locator := gpu.DeviceLocator{PlatformMatch: *platform, DeviceMatch: *device, ProgramPath: kernelPath, Kind: gpu.KindSource}
	if err := engine.Open(locator.String(), opts); err != nil {
		logrus.Fatalf("gpu.Open failed: %+v", err)
	}
	defer engine.Close()

	switch *op {
	case "multiply":
		runMultiply(engine)
	case "add":
		runAdd(engine)
	case "accumulate":
		runAccumulate(engine)
	default:
		fmt.Printf("Unknown op: %s. Options: multiply, add, accumulate, devices\n", *op)
	}
}

func stageKernelSource() (string, func(), error) {
	raw, err := kernelSources.ReadFile("kernels/vector_ops.cl")
	if err != nil {
		return "", nil, err
	}
	dir, err := os.MkdirTemp("", "atomspace-gpu-demo")
	if err != nil {
		return "", nil, err
	}
	path := filepath.Join(dir, "vector_ops.cl")
	if err := os.WriteFile(path, raw, 0644); err != nil {
		os.RemoveAll(dir)
		return "", nil, err
	}
	return path, func() { os.RemoveAll(dir) }, nil
}

func listDevices() {
	descriptors, err := gpu.EnumerateDevices()
	if err != nil {
		logrus.Fatalf("EnumerateDevices failed: %+v", err)
	}
	for _, d := range descriptors {
		fmt.Printf("%s / %s\n", d.Platform, d.Device)
	}
}

func runMultiply(engine *gpu.Engine) {
	a := gpu.HostFloats{1, 2, 3, 4}
	b := gpu.HostFloats{5, 6, 7, 8}
	out := gpu.NewBufferValue(nil)

	if err := engine.Submit(gpu.Invocation{Kernel: gpu.KernelName("vec_mult"), Args: []gpu.Argument{a, b, out}}); err != nil {
		logrus.Fatalf("submit failed: %+v", err)
	}
	result := readResult(engine)
	logrus.Infof("vec_mult(%v, %v) = %v", a, b, result.Values())
}

func runAdd(engine *gpu.Engine) {
	a := gpu.HostFloats{10, 20, 30}
	b := gpu.HostFloats{1, 2, 3}
	out := gpu.NewBufferValue(nil)

	if err := engine.Submit(gpu.Invocation{Kernel: gpu.KernelName("vec_add"), Args: []gpu.Argument{a, b, out}}); err != nil {
		logrus.Fatalf("submit failed: %+v", err)
	}
	result := readResult(engine)
	logrus.Infof("vec_add(%v, %v) = %v", a, b, result.Values())
}

// runAccumulate reuses one BufferValue as both an input and the
// designated output across five dispatches, demonstrating that a bound
// BufferValue survives reuse without rebinding.
func runAccumulate(engine *gpu.Engine) {
	acc := gpu.NewBufferValue([]float64{0, 0, 0, 0})
	delta := gpu.NewBufferValue([]float64{1, 1, 1, 1})

	for i := 0; i < 5; i++ {
		if err := engine.Submit(gpu.Invocation{Kernel: gpu.KernelName("vec_add"), Args: []gpu.Argument{acc, delta, acc}}); err != nil {
			logrus.Fatalf("submit failed: %+v", err)
		}
		acc = readResult(engine)
	}
	logrus.Infof("accumulated result after 5 dispatches: %v", acc.Values())
}

func readResult(engine *gpu.Engine) *gpu.BufferValue {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result, ok := engine.Read(ctx)
	if !ok {
		logrus.Fatal("engine closed before a result was produced")
	}
	if err := result.Err(); err != nil {
		logrus.Fatalf("job failed: %+v", err)
	}
	return result
}
