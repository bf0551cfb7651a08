package main

import (
	"flag"
	"fmt"
	"os"
	"reflect"

	"github.com/ggufkit/gguf"
)

const arrayPrintLimit = 30

func runShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	verbose := fs.Bool("verbose", false, "print arrays in full instead of truncating to 30 elements")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s show [--verbose] file.gguf\n", progName())
		os.Exit(2)
	}

	f, err := gguf.Open(fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Printf("version: %d\n", f.Version)
	fmt.Printf("alignment: %d\n", f.Alignment)
	fmt.Printf("key-values: %d\n", len(f.KeyValues))
	fmt.Printf("tensors: %d\n", len(f.TensorInfos))
	fmt.Println()

	for _, kv := range f.KeyValues {
		fmt.Printf("%s: [%s] %s\n", kv.Key, gguf.ValueTypeName(kv.Type()), formatValue(kv.Value, *verbose))
	}
	fmt.Println()

	for _, ti := range f.TensorInfos {
		fmt.Printf("%s %s @%d, %d weights, %d bytes\n",
			ti.Type, ti.Name, ti.Offset, ti.NumElements(), ti.NumBytes())
	}
	fmt.Println()

	fmt.Printf("total parameters: %.3fB\n", float64(f.TotalParameters())/1e9)
	return nil
}

// formatValue renders a kv's payload for show's listing. Scalars print
// directly; arrays truncate to arrayPrintLimit elements unless verbose.
func formatValue(v gguf.Value, verbose bool) string {
	raw := v.Raw()
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice || raw == nil {
		return fmt.Sprintf("%v", raw)
	}

	n := rv.Len()
	shown := n
	if !verbose && shown > arrayPrintLimit {
		shown = arrayPrintLimit
	}
	elems := make([]any, shown)
	for i := 0; i < shown; i++ {
		elems[i] = rv.Index(i).Interface()
	}
	if shown < n {
		return fmt.Sprintf("%v ... (%d total)", elems, n)
	}
	return fmt.Sprintf("%v", elems)
}
