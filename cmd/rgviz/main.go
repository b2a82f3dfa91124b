// Command rgviz compiles a synthetic frame against the null backend and
// prints the resulting schedule: encoders, command streams, and the
// dependency edges before and after transitive reduction.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph/backend/null"
	"github.com/gogpu/rendergraph/internal/sched"
	"github.com/gogpu/rendergraph/rgcore"
)

func main() {
	var (
		passes   = flag.Int("passes", 6, "number of compute passes in the demo chain")
		aliasing = flag.Bool("aliasing", false, "enable transient heap aliasing")
	)
	flag.Parse()

	if *passes < 2 {
		log.Fatal("rgviz: need at least 2 passes")
	}

	backend := null.New()
	table := rgcore.NewResourceTable()
	registry := rgcore.NewQueueRegistry()
	queue := registry.Allocate()
	transient := sched.NewRegistry(table, backend.Allocator(), sched.RegistryOptions{
		HeapAliasing: *aliasing,
	})

	records, usages := buildDemoFrame(table, *passes)
	usages.Finalize(records)

	info := sched.NewCommandInfo(records, 1)
	compiler := &sched.Compiler{
		Table:      table,
		Transient:  transient,
		Queue:      queue,
		FrameIndex: 1,
	}
	cf, err := compiler.Compile(info, usages)
	if err != nil {
		log.Fatalf("rgviz: compile: %v", err)
	}

	printSchedule(cf)
	_ = os.Stdout.Sync()
}

// buildDemoFrame declares a compute chain with a shared ping-pong pair
// of buffers plus one texture sampled by every odd pass.
func buildDemoFrame(table *rgcore.ResourceTable, passes int) ([]sched.PassRecord, *sched.ResourceUsages) {
	ping := table.NewBuffer(rgcore.BufferDescriptor{Label: "ping", Length: 1 << 16}, 0)
	pong := table.NewBuffer(rgcore.BufferDescriptor{Label: "pong", Length: 1 << 16}, 0)
	lut := table.NewTexture(rgcore.DefaultTextureDescriptor(256, 256, gputypes.TextureFormatRGBA8Unorm), 0)

	usages := sched.NewResourceUsages()
	records := make([]sched.PassRecord, 0, passes)

	record := func(pass int, res rgcore.Resource, access rgcore.AccessType) {
		usages.Record(res, sched.Usage{
			PassIndex: pass,
			Access:    access,
			Stages:    rgcore.StageCompute,
		})
	}

	for i := 0; i < passes; i++ {
		records = append(records, sched.PassRecord{
			Index:        i,
			Type:         rgcore.PassCompute,
			Name:         fmt.Sprintf("step%d", i),
			Active:       true,
			CommandRange: sched.Range{Lo: i, Hi: i + 1},
			// One encoder per step keeps the dependency table visible;
			// coalesced steps would synchronize with barriers instead.
			StartsNewEncoder: true,
		})

		src, dst := ping.Resource, pong.Resource
		if i%2 == 1 {
			src, dst = pong.Resource, ping.Resource
			record(i, lut.Resource, rgcore.AccessRead)
		}
		if i == 0 {
			record(i, lut.Resource, rgcore.AccessWrite)
			record(i, dst, rgcore.AccessWrite)
			continue
		}
		record(i, src, rgcore.AccessRead)
		record(i, dst, rgcore.AccessWrite)
	}
	return records, usages
}

func printSchedule(cf *sched.CompiledFrame) {
	info := cf.Info

	fmt.Printf("encoders: %d, command buffers: %d\n\n", len(info.Encoders), info.CommandBufferCount)
	for i := range info.Encoders {
		e := &info.Encoders[i]
		fmt.Printf("  encoder %d: %v passes [%d,%d) commands [%d,%d) cb %d (signal %d)\n",
			i, e.Type, e.PassRange.Lo, e.PassRange.Hi, e.CommandRange.Lo, e.CommandRange.Hi,
			e.CommandBufferIndex, info.SignalValue(e.CommandBufferIndex))
	}

	fmt.Printf("\npre-frame commands (%d):\n", len(cf.PreFrame))
	for _, c := range cf.PreFrame {
		fmt.Printf("  %v\n", c)
	}

	fmt.Printf("\nin-frame commands (%d):\n", len(cf.InFrame))
	for _, c := range cf.InFrame {
		fmt.Printf("  %v\n", c)
	}

	direct := 0
	cf.Deps.ForEach(func(dependent, producer int, _ *sched.Dependency) {
		direct++
	})
	fmt.Printf("\ndependency edges: %d direct, %d after reduction\n", direct, len(cf.Edges))
	for _, e := range cf.Edges {
		fmt.Printf("  encoder %d -> encoder %d (signal@%d %v, wait@%d %v)\n",
			e.Dependent, e.Producer,
			e.Dependency.Signal.CommandIndex, e.Dependency.Signal.Stages,
			e.Dependency.Wait.CommandIndex, e.Dependency.Wait.Stages)
	}
	fmt.Printf("fences: %d\n", len(cf.Fences))
}
