package main

import (
	"fmt"
	"os"

	"github.com/ggufkit/gguf"
)

func runCompare(args []string) error {
	if len(args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s compare a.gguf b.gguf\n", progName())
		os.Exit(2)
	}
	pathA, pathB := args[0], args[1]

	fa, err := gguf.Open(pathA)
	if err != nil {
		return err
	}
	fb, err := gguf.Open(pathB)
	if err != nil {
		return err
	}

	ra, err := gguf.NewMMapReader(pathA, fa)
	if err != nil {
		return err
	}
	defer ra.Close()
	rb, err := gguf.NewMMapReader(pathB, fb)
	if err != nil {
		return err
	}
	defer rb.Close()

	for _, name := range fa.ListTensorNames() {
		tiB, ok := fb.GetTensorInfo(name)
		if !ok {
			continue
		}
		tiA, _ := fa.GetTensorInfo(name)

		rawA, _, err := ra.ReadTensorRaw(name)
		if err != nil {
			return err
		}
		rawB, _, err := rb.ReadTensorRaw(name)
		if err != nil {
			return err
		}
		valsA, err := gguf.TensorToFloat32(tiA, rawA)
		if err != nil {
			return err
		}
		valsB, err := gguf.TensorToFloat32(tiB, rawB)
		if err != nil {
			return err
		}
		if len(valsA) != len(valsB) {
			fmt.Printf("%s: shape mismatch, skipped\n", name)
			continue
		}

		fmt.Printf("%s: %.4f%%\n", name, meanRelativeDifference(valsA, valsB))
	}
	return nil
}

// meanRelativeDifference is the mean absolute elementwise difference
// divided by the mean absolute magnitude of a, expressed as a percentage.
func meanRelativeDifference(a, b []float32) float64 {
	if len(a) == 0 {
		return 0
	}
	var sumDiff, sumMag float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		if d < 0 {
			d = -d
		}
		sumDiff += d
		m := float64(a[i])
		if m < 0 {
			m = -m
		}
		sumMag += m
	}
	meanMag := sumMag / float64(len(a))
	if meanMag == 0 {
		return 0
	}
	return (sumDiff / float64(len(a))) / meanMag * 100
}
