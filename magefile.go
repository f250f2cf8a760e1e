//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

// Default target to run when none is specified
// If not set, running mage will list available targets
var Default = Build

// libraryPackages do not link against libhdf5.
var libraryPackages = []string{"./pkg", "./pkg/cat", "./pkg/trigger", "./pkg/store"}

func goCommand(args ...string) *exec.Cmd {
	ldflags := os.Getenv("CGO_LDFLAGS")
	cflags := os.Getenv("CGO_CFLAGS")
	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=1",
		fmt.Sprintf("CGO_LDFLAGS=%s", ldflags),
		fmt.Sprintf("CGO_CFLAGS=%s", cflags))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// Build compiles the snemo executable into ./bin.
func Build() error {
	fmt.Println("Building snemo executable...")
	if err := goCommand("build", "-o", "./bin/snemo", ".").Run(); err != nil {
		return err
	}
	fmt.Println("Compilation finished")
	return nil
}

// Test runs the tests of the library packages.
func Test() error {
	args := append([]string{"test", "-count=1"}, libraryPackages...)
	return goCommand(args...).Run()
}

// Memories regenerates the tracker trigger memories into data/memories.
func Memories() error {
	mg.Deps(Build)
	cmd := exec.Command("./bin/snemo", "memgen", "--out", "data/memories")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
