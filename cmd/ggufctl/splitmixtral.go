package main

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/ggufkit/gguf"
)

// expertTensorPattern matches a per-expert feed-forward tensor name in
// the llama.cpp Mixtral convention, e.g. "blk.3.ffn_gate.5.weight" for
// block 3's expert 5 gate projection.
var expertTensorPattern = regexp.MustCompile(`^blk\.(\d+)\.(ffn_(?:gate|down|up))\.(\d+)\.weight$`)

const mixtralBlockCount = 32

func runSplitMixtral(args []string) error {
	if len(args) != 3 {
		fmt.Fprintf(os.Stderr, "usage: %s split-mixtral <32 digits 0-7> in.gguf out.gguf\n", progName())
		os.Exit(2)
	}
	digitsArg, inPath, outPath := args[0], args[1], args[2]

	experts, err := parseExpertDigits(digitsArg)
	if err != nil {
		return err
	}

	f, err := gguf.Open(inPath)
	if err != nil {
		return err
	}
	reader, err := gguf.NewMMapReader(inPath, f)
	if err != nil {
		return err
	}
	defer reader.Close()

	type keptTensor struct {
		name string
		info gguf.TensorInfo
		raw  []byte
	}
	var kept []keptTensor
	for _, ti := range f.TensorInfos {
		block, op, expertID, isExpert := parseExpertTensorName(ti.Name)
		name := ti.Name
		if isExpert {
			if block >= mixtralBlockCount || expertID != experts[block] {
				continue
			}
			name = fmt.Sprintf("blk.%d.%s.weight", block, op)
		}

		raw, _, err := reader.ReadTensorRaw(ti.Name)
		if err != nil {
			return err
		}
		kept = append(kept, keptTensor{name: name, info: ti, raw: raw})
	}

	w, err := gguf.Create(outPath, true)
	if err != nil {
		return err
	}
	defer w.Close()

	for _, kv := range f.KeyValues {
		if err := w.AppendKeyValue(kv.Key, kv.Value); err != nil {
			return err
		}
	}

	alignment := f.Alignment
	if alignment == 0 {
		alignment = 32
	}
	offsets := make([]uint64, len(kept))
	var cumulative uint64
	for i, kt := range kept {
		offsets[i] = roundUp(cumulative, alignment)
		cumulative = offsets[i] + uint64(len(kt.raw))
	}

	for i, kt := range kept {
		if err := w.AppendTensorInfo(kt.name, kt.info.Shape, kt.info.Type, offsets[i]); err != nil {
			return err
		}
	}
	for _, kt := range kept {
		if err := w.AppendTensorData(kt.raw); err != nil {
			return err
		}
	}
	return nil
}

// parseExpertTensorName reports the block index, feed-forward op name,
// and expert id encoded in an expert tensor's name, per
// expertTensorPattern. ok is false for any tensor not in that shape
// (embeddings, attention weights, layer norms, non-expert ffn tensors).
func parseExpertTensorName(name string) (block int, op string, expertID int, ok bool) {
	m := expertTensorPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, "", 0, false
	}
	block, _ = strconv.Atoi(m[1])
	expertID, _ = strconv.Atoi(m[3])
	return block, m[2], expertID, true
}

// parseExpertDigits expands s to exactly mixtralBlockCount expert ids,
// repeating its final digit for any block the caller omitted.
func parseExpertDigits(s string) ([]int, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("expert digit string must not be empty")
	}
	if len(s) > mixtralBlockCount {
		return nil, fmt.Errorf("expert digit string has %d digits, at most %d allowed", len(s), mixtralBlockCount)
	}

	digits := make([]int, mixtralBlockCount)
	for i := 0; i < mixtralBlockCount; i++ {
		c := s[len(s)-1]
		if i < len(s) {
			c = s[i]
		}
		if c < '0' || c > '7' {
			return nil, fmt.Errorf("digit %d (%q) is not in range 0-7", i, c)
		}
		digits[i] = int(c - '0')
	}
	return digits, nil
}

func roundUp(n, align uint64) uint64 {
	if align == 0 {
		return n
	}
	if rem := n % align; rem != 0 {
		return n + (align - rem)
	}
	return n
}
