package entities

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Memory is the body of /sdapi/v1/memory. Cuda is empty when it comes from the local system.
type Memory struct {
	RAM  RAM  `json:"ram"`
	Cuda Cuda `json:"cuda"`
}

type Cuda struct {
	System    RAM    `json:"system"`
	Active    Active `json:"active"`
	Allocated Active `json:"allocated"`
}

type Active struct {
	Current float64 `json:"current"`
	Peak    float64 `json:"peak"`
}

type RAM struct {
	Free  float64 `json:"free"`
	Used  float64 `json:"used"`
	Total float64 `json:"total"`
}

type ReadableMemory struct {
	Free  string `json:"free"`
	Used  string `json:"used"`
	Total string `json:"total"`
}

func (mem *RAM) Readable() *ReadableMemory {
	return &ReadableMemory{
		Free:  humanize.IBytes(uint64(mem.Free)),
		Used:  humanize.IBytes(uint64(mem.Used)),
		Total: humanize.IBytes(uint64(mem.Total)),
	}
}

func (mem *ReadableMemory) String() string {
	return fmt.Sprintf("%s used, %s free of %s", mem.Used, mem.Free, mem.Total)
}

// Fits reports whether size more bytes fit into the free memory.
func (mem *RAM) Fits(size uint64) bool {
	return float64(size) <= mem.Free
}
