package trigger

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	snemo "github.com/next-exp/snemo_go/pkg"
)

const (
	maxAddressSize = 16
	maxDataSize    = 32
)

// Memory emulates a programmable lookup memory: every address of
// addressSize bits maps to a data word of dataSize bits. Addresses never
// pushed read back as the default data.
type Memory struct {
	addressSize int
	dataSize    int
	defaultData uint32
	data        []uint32
	pushed      []bool
	Description string
}

func NewMemory(addressSize, dataSize int) (*Memory, error) {
	if addressSize < 1 || addressSize > maxAddressSize {
		return nil, &snemo.ConfigurationError{Key: "address_size", Reason: fmt.Sprintf("%d out of [1, %d]", addressSize, maxAddressSize)}
	}
	if dataSize < 1 || dataSize > maxDataSize {
		return nil, &snemo.ConfigurationError{Key: "data_size", Reason: fmt.Sprintf("%d out of [1, %d]", dataSize, maxDataSize)}
	}
	n := 1 << addressSize
	return &Memory{
		addressSize: addressSize,
		dataSize:    dataSize,
		data:        make([]uint32, n),
		pushed:      make([]bool, n),
	}, nil
}

func (m *Memory) AddressSize() int { return m.addressSize }
func (m *Memory) DataSize() int    { return m.dataSize }
func (m *Memory) Default() uint32  { return m.defaultData }

func (m *Memory) NumberOfAddresses() int {
	return 1 << m.addressSize
}

func (m *Memory) dataMask() uint32 {
	if m.dataSize == 32 {
		return ^uint32(0)
	}
	return 1<<m.dataSize - 1
}

// SetDefault changes the value returned for addresses never pushed.
func (m *Memory) SetDefault(data uint32) error {
	if data&^m.dataMask() != 0 {
		return fmt.Errorf("default data %d does not fit in %d bits", data, m.dataSize)
	}
	m.defaultData = data
	for addr, ok := range m.pushed {
		if !ok {
			m.data[addr] = data
		}
	}
	return nil
}

func (m *Memory) Push(address, data uint32) error {
	if int(address) >= m.NumberOfAddresses() {
		return fmt.Errorf("address %d does not fit in %d bits", address, m.addressSize)
	}
	if data&^m.dataMask() != 0 {
		return fmt.Errorf("data %d does not fit in %d bits", data, m.dataSize)
	}
	m.data[address] = data
	m.pushed[address] = true
	return nil
}

// Fetch returns the data stored at address. Out of range addresses read as
// the default data.
func (m *Memory) Fetch(address uint32) uint32 {
	if int(address) >= m.NumberOfAddresses() {
		return m.defaultData
	}
	return m.data[address]
}

// Complete reports whether every address holds an explicit value.
func (m *Memory) Complete() bool {
	for _, ok := range m.pushed {
		if !ok {
			return false
		}
	}
	return true
}

func (m *Memory) Equal(other *Memory) bool {
	if other == nil || m.addressSize != other.addressSize || m.dataSize != other.dataSize {
		return false
	}
	if m.defaultData != other.defaultData {
		return false
	}
	for addr := range m.data {
		if m.data[addr] != other.data[addr] {
			return false
		}
	}
	return true
}

func formatBits(value uint32, width int) string {
	s := strconv.FormatUint(uint64(value), 2)
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s
}

func parseBits(s string, width int) (uint32, error) {
	if len(s) != width {
		return 0, fmt.Errorf("%q is not a %d-bit word", s, width)
	}
	v, err := strconv.ParseUint(s, 2, width)
	if err != nil {
		return 0, fmt.Errorf("%q is not a %d-bit word", s, width)
	}
	return uint32(v), nil
}

// Store writes the memory in the text table format: metadata header, then
// one "<address> <data>" line per address whose data differs from the
// default, addresses ascending.
func (m *Memory) Store(w io.Writer, description string) error {
	bw := bufio.NewWriter(w)
	if description != "" {
		fmt.Fprintf(bw, "#@description = %s\n", description)
	}
	fmt.Fprintf(bw, "#@address_size = %d\n", m.addressSize)
	fmt.Fprintf(bw, "#@data_size = %d\n", m.dataSize)
	fmt.Fprintf(bw, "#@default_data = %s\n", formatBits(m.defaultData, m.dataSize))
	for addr, data := range m.data {
		if data == m.defaultData {
			continue
		}
		fmt.Fprintf(bw, "%s %s\n", formatBits(uint32(addr), m.addressSize), formatBits(data, m.dataSize))
	}
	return bw.Flush()
}

// Load reads a memory table written by Store. Registered value aliases and
// plain comments are accepted; metadata after the first data line is not.
// Every address not listed takes the default data.
func Load(r io.Reader) (*Memory, error) {
	var (
		addressSize, dataSize int
		description           string
		defaultStr            string
		registered            = map[string]string{}
		mem                   *Memory
		err                   error
	)

	resolve := func(s string) string {
		if v, ok := registered[s]; ok {
			return v
		}
		return s
	}

	// open allocates the memory once the header is complete.
	open := func() (*Memory, error) {
		m, err := NewMemory(addressSize, dataSize)
		if err != nil {
			return nil, err
		}
		if defaultStr != "" {
			def, err := parseBits(resolve(defaultStr), dataSize)
			if err != nil {
				return nil, fmt.Errorf("default data: %w", err)
			}
			m.defaultData = def
		}
		return m, nil
	}

	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if !strings.HasPrefix(line, "#@") {
				continue
			}
			if mem != nil {
				return nil, &snemo.ErrMemoryFormat{Line: lineNumber, Reason: "metadata outside header"}
			}
			key, value, found := strings.Cut(line, "=")
			if !found {
				return nil, &snemo.ErrMemoryFormat{Line: lineNumber, Reason: "expected key = value"}
			}
			key, value = strings.TrimSpace(key), strings.TrimSpace(value)
			switch key {
			case "#@address_size":
				addressSize, err = strconv.Atoi(value)
			case "#@data_size":
				dataSize, err = strconv.Atoi(value)
			case "#@description":
				description = value
			case "#@default_data":
				defaultStr = value
			case "#@registered_value":
				label, bits, ok := strings.Cut(value, ":")
				if !ok {
					return nil, &snemo.ErrMemoryFormat{Line: lineNumber, Reason: "expected label : value"}
				}
				registered[strings.TrimSpace(label)] = strings.TrimSpace(bits)
			default:
				return nil, &snemo.ErrMemoryFormat{Line: lineNumber, Reason: "unsupported metadata " + key}
			}
			if err != nil {
				return nil, &snemo.ErrMemoryFormat{Line: lineNumber, Reason: err.Error()}
			}
			continue
		}

		if mem == nil {
			if mem, err = open(); err != nil {
				return nil, &snemo.ErrMemoryFormat{Line: lineNumber, Reason: err.Error()}
			}
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, &snemo.ErrMemoryFormat{Line: lineNumber, Reason: "expected <address> <data>"}
		}
		addr, err := parseBits(fields[0], addressSize)
		if err != nil {
			return nil, &snemo.ErrMemoryFormat{Line: lineNumber, Reason: "address: " + err.Error()}
		}
		data, err := parseBits(resolve(fields[1]), dataSize)
		if err != nil {
			return nil, &snemo.ErrMemoryFormat{Line: lineNumber, Reason: "data: " + err.Error()}
		}
		if err := mem.Push(addr, data); err != nil {
			return nil, &snemo.ErrMemoryFormat{Line: lineNumber, Reason: err.Error()}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// A table made only of the header is a memory holding the default data
	// everywhere.
	if mem == nil {
		if mem, err = open(); err != nil {
			return nil, &snemo.ErrMemoryFormat{Line: lineNumber, Reason: err.Error()}
		}
	}

	for addr, ok := range mem.pushed {
		if !ok {
			mem.data[addr] = mem.defaultData
			mem.pushed[addr] = true
		}
	}
	mem.Description = description
	return mem, nil
}
