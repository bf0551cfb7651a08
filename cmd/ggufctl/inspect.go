package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ggufkit/gguf"
)

func runInspectTensor(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		fmt.Fprintf(os.Stderr, "usage: %s inspect-tensor file.gguf name [count]\n", progName())
		os.Exit(2)
	}
	path, name := args[0], args[1]

	count := -1
	if len(args) == 3 {
		n, err := strconv.Atoi(args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad count %q: %v\n", args[2], err)
			os.Exit(2)
		}
		count = n
	}

	f, err := gguf.Open(path)
	if err != nil {
		return err
	}

	ti, ok := f.GetTensorInfo(name)
	if !ok {
		return fmt.Errorf("tensor %q: %w", name, gguf.ErrNotFound)
	}

	reader, err := gguf.NewMMapReader(path, f)
	if err != nil {
		return err
	}
	defer reader.Close()

	raw, _, err := reader.ReadTensorRaw(name)
	if err != nil {
		return err
	}
	weights, err := gguf.TensorToFloat32(ti, raw)
	if err != nil {
		return err
	}

	if count < 0 || count > len(weights) {
		count = len(weights)
	}
	for i := 0; i < count; i++ {
		fmt.Printf("%12.6f", weights[i])
		if i%4 == 3 {
			fmt.Println()
		} else {
			fmt.Print(" ")
		}
	}
	if count%4 != 0 {
		fmt.Println()
	}
	return nil
}
