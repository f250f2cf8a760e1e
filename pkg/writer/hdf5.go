package writer

import (
	"fmt"

	"github.com/jmbenlloch/go-hdf5"
)

const STRLEN = 40

type RunInfoHDF5 struct {
	run_id [STRLEN]byte
	label  [STRLEN]byte
}

type EventDataHDF5 struct {
	evt_number     int32
	n_tracker_hits int32
	n_calo_hits    int32
	n_solutions    int32
}

type ClusterHDF5 struct {
	evt_number      int32
	solution_id     int32
	cluster_id      int32
	n_hits          int32
	has_charge      int8
	charge          float64
	has_momentum    int8
	momentum_x      float64
	momentum_y      float64
	momentum_z      float64
	tangent_length  float64
	helix_length    float64
	has_vertex      int8
	vertex_x        float64
	vertex_y        float64
	vertex_z        float64
	has_decay       int8
	decay_x         float64
	decay_y         float64
	decay_z         float64
	decay_calo_id   int32
	n_unclustered   int32
	clusterizer_tag [STRLEN]byte
}

type HitHDF5 struct {
	evt_number  int32
	solution_id int32
	cluster_id  int32
	hit_id      int32
	tangency_x  float64
	tangency_y  float64
	tangency_z  float64
	helix_x     float64
	helix_y     float64
	helix_z     float64
}

type L1HDF5 struct {
	evt_number     int32
	clocktick_25ns int32
}

type L2HDF5 struct {
	evt_number       int32
	clocktick_1600ns int32
	mode             [STRLEN]byte
	decision         int8
}

func convertToHdf5String(s string) [STRLEN]byte {
	var byteArray [STRLEN]byte
	copy(byteArray[:], s)
	return byteArray
}

func boolToInt8(b bool) int8 {
	if b {
		return 1
	}
	return 0
}

// table is an extendable one dimensional dataset and the number of rows
// already written to it.
type table struct {
	dset *hdf5.Dataset
	rows int
}

func createTable(group *hdf5.Group, name string, datatype interface{}, compression int) (*table, error) {
	dims := []uint{0}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDims := []uint{uint(unlimitedDims)}
	fileSpace, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		return nil, fmt.Errorf("error creating dataspace for %s: %w", name, err)
	}
	defer fileSpace.Close()

	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return nil, fmt.Errorf("error creating property list for %s: %w", name, err)
	}
	defer plist.Close()

	chunks := []uint{32768}
	if err := plist.SetChunk(chunks); err != nil {
		return nil, fmt.Errorf("error setting chunks for %s: %w", name, err)
	}
	if compression > 0 {
		if err := plist.SetDeflate(compression); err != nil {
			return nil, fmt.Errorf("error setting compression for %s: %w", name, err)
		}
	}

	dtype, err := hdf5.NewDatatypeFromValue(datatype)
	if err != nil {
		return nil, fmt.Errorf("error creating datatype for %s: %w", name, err)
	}

	dset, err := group.CreateDatasetWith(name, dtype, fileSpace, plist)
	if err != nil {
		return nil, fmt.Errorf("error creating dataset %s: %w", name, err)
	}
	return &table{dset: dset}, nil
}

func writeEntryToTable[T any](t *table, data T) error {
	array := []T{data}
	return writeArrayToTable(t, &array)
}

// writeArrayToTable appends the rows at the end of the table. data points to
// the slice so that the library can take the address of its backing array.
func writeArrayToTable[T any](t *table, data *[]T) error {
	length := uint(len(*data))
	if length == 0 {
		return nil
	}
	dims := []uint{length}
	dataspace, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return err
	}
	defer dataspace.Close()

	// extend
	rowsInFile := uint(t.rows)
	newsize := []uint{rowsInFile + length}
	if err := t.dset.Resize(newsize); err != nil {
		return err
	}
	filespace := t.dset.Space()
	defer filespace.Close()

	start := []uint{rowsInFile}
	count := []uint{length}
	if err := filespace.SelectHyperslab(start, nil, count, nil); err != nil {
		return err
	}
	if err := t.dset.WriteSubset(data, dataspace, filespace); err != nil {
		return err
	}
	t.rows += int(length)
	return nil
}
