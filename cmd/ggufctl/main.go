// Command ggufctl inspects and manipulates GGUF model files: print their
// metadata and tensor table, dump dequantized weights, compare two files
// tensor-by-tensor, or split a Mixtral-style MoE checkpoint down to a
// single expert per block.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "show":
		err = runShow(args)
	case "inspect-tensor":
		err = runInspectTensor(args)
	case "compare":
		err = runCompare(args)
	case "split-mixtral":
		err = runSplitMixtral(args)
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n\n", progName(), cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Printf("%s: %v", cmd, err)
		os.Exit(1)
	}
}

func progName() string {
	return filepath.Base(os.Args[0])
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s <command> [arguments]\n\n", progName())
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  show file.gguf\n")
	fmt.Fprintf(os.Stderr, "        print header, metadata, and tensor table\n")
	fmt.Fprintf(os.Stderr, "  inspect-tensor file.gguf name [count]\n")
	fmt.Fprintf(os.Stderr, "        dequantize a tensor and print up to count weights\n")
	fmt.Fprintf(os.Stderr, "  compare a.gguf b.gguf\n")
	fmt.Fprintf(os.Stderr, "        print the mean relative difference of every shared tensor\n")
	fmt.Fprintf(os.Stderr, "  split-mixtral <32 digits 0-7> in.gguf out.gguf\n")
	fmt.Fprintf(os.Stderr, "        keep one expert per block, chosen by the digit string\n")
}
