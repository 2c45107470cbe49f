package raster

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// ReadDataset loads the grid rooted at bilPath, expecting <stem>.hdr next
// to it and honoring <stem>.prj when present. Missing .prj means PRISM's
// native geographic CRS.
func ReadDataset(bilPath string) (*Raster, error) {
	stem := strings.TrimSuffix(bilPath, ".bil")

	hdr, err := readHeader(stem + ".hdr")
	if err != nil {
		return nil, err
	}

	crs := DatasetCRS(bilPath)

	values, err := readBand(bilPath, hdr)
	if err != nil {
		return nil, err
	}
	return &Raster{Header: hdr, CRS: crs, values: values}, nil
}

// DatasetCRS reports the CRS of the grid rooted at bilPath from its .prj
// sidecar, without touching the band. Used to pick the reprojection target
// for the zone set before any grid is fully loaded.
func DatasetCRS(bilPath string) CRS {
	stem := strings.TrimSuffix(bilPath, ".bil")
	if wkt, err := os.ReadFile(stem + ".prj"); err == nil {
		return ParseCRS(string(wkt))
	}
	return CRSGeographic
}

// ParseCRS recognizes the two reference systems the pipeline handles from
// WKT keywords. Anything that is not recognizably Mercator is treated as
// geographic, which matches every grid the PRISM archive serves.
func ParseCRS(wkt string) CRS {
	if strings.Contains(strings.ToLower(wkt), "mercator") {
		return CRSWebMercator
	}
	return CRSGeographic
}

// readHeader parses the ESRI .hdr key/value format: one "KEY value" pair
// per line, keys case-insensitive, unknown keys ignored.
func readHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("open header %s: %w", path, err)
	}
	defer f.Close()

	hdr := Header{
		NBits:        8,
		PixelType:    "UNSIGNEDINT",
		LittleEndian: true,
		XDim:         1,
		YDim:         1,
		NoData:       math.Inf(-1),
	}
	nbands := 1
	layout := "BIL"

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		key := strings.ToUpper(fields[0])
		val := fields[1]
		switch key {
		case "NROWS":
			hdr.NRows, err = strconv.Atoi(val)
		case "NCOLS":
			hdr.NCols, err = strconv.Atoi(val)
		case "NBANDS":
			nbands, err = strconv.Atoi(val)
		case "NBITS":
			hdr.NBits, err = strconv.Atoi(val)
		case "PIXELTYPE":
			hdr.PixelType = strings.ToUpper(val)
		case "BYTEORDER":
			hdr.LittleEndian = strings.EqualFold(val, "I")
		case "LAYOUT":
			layout = strings.ToUpper(val)
		case "ULXMAP":
			hdr.ULXMap, err = strconv.ParseFloat(val, 64)
		case "ULYMAP":
			hdr.ULYMap, err = strconv.ParseFloat(val, 64)
		case "XDIM":
			hdr.XDim, err = strconv.ParseFloat(val, 64)
		case "YDIM":
			hdr.YDim, err = strconv.ParseFloat(val, 64)
		case "NODATA", "NODATA_VALUE":
			hdr.NoData, err = strconv.ParseFloat(val, 64)
		}
		if err != nil {
			return Header{}, fmt.Errorf("header %s: bad %s value %q: %w", path, key, val, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return Header{}, fmt.Errorf("read header %s: %w", path, err)
	}

	if hdr.NRows <= 0 || hdr.NCols <= 0 {
		return Header{}, fmt.Errorf("header %s: missing or invalid NROWS/NCOLS", path)
	}
	if nbands != 1 {
		return Header{}, fmt.Errorf("header %s: %d bands, only single-band grids supported", path, nbands)
	}
	if layout != "BIL" {
		// BIL, BIP and BSQ are identical for a single band.
		if layout != "BIP" && layout != "BSQ" {
			return Header{}, fmt.Errorf("header %s: unsupported layout %s", path, layout)
		}
	}
	return hdr, nil
}

// readBand decodes the raw cell values. PRISM ships 32-bit floats; the
// older scaled grids are 16-bit signed ints.
func readBand(path string, hdr Header) ([]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read band %s: %w", path, err)
	}

	cells := hdr.NRows * hdr.NCols
	bytesPerCell := hdr.NBits / 8
	if want := cells * bytesPerCell; len(data) < want {
		return nil, fmt.Errorf("band %s: %d bytes, want %d (%dx%d cells at %d bits)",
			path, len(data), want, hdr.NRows, hdr.NCols, hdr.NBits)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if !hdr.LittleEndian {
		order = binary.BigEndian
	}

	values := make([]float64, cells)
	switch {
	case hdr.NBits == 32 && hdr.PixelType == "FLOAT":
		for i := 0; i < cells; i++ {
			bits := order.Uint32(data[i*4 : i*4+4])
			values[i] = float64(math.Float32frombits(bits))
		}
	case hdr.NBits == 16 && hdr.PixelType == "SIGNEDINT":
		for i := 0; i < cells; i++ {
			values[i] = float64(int16(order.Uint16(data[i*2 : i*2+2])))
		}
	default:
		return nil, fmt.Errorf("band %s: unsupported cell type %s/%d-bit", path, hdr.PixelType, hdr.NBits)
	}
	return values, nil
}
