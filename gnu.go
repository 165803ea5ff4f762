package tar

import "strconv"

// sparseFromPAXHeader inspects the merged PAX record set for GNU sparse
// markers and returns the SparseInfo describing format 0.1 or 1.0. It
// returns (nil, nil) when no sparse markers are present, so the entry is
// treated as an ordinary file. Only 0.1 and 1.0 are accepted; any other
// major/minor pair is reported as unsupported-feature. GNU.sparse.name,
// when present on a record set that marks a sparse format, is treated
// like a PAX path override and applied to
// hdr.Name directly, matching how a sparse-1.0 archive carries its real
// file name in this key rather than in the ustar name/prefix fields.
func sparseFromPAXHeader(hdr *Header, records map[string]string) (*SparseInfo, error) {
	major, majorOK := records[paxGNUSparseMaj]
	minor, minorOK := records[paxGNUSparseMin]
	name, nameOK := records[paxGNUSparseName]
	_, mapOK := records[paxGNUSparseMap]
	realSizeStr, realSizeOK := records[paxGNUSparseReal]

	var majorN, minorN int64
	var haveVersion bool
	switch {
	case majorOK && minorOK:
		m, err1 := strconv.ParseInt(major, 10, 64)
		n, err2 := strconv.ParseInt(minor, 10, 64)
		if err1 != nil || err2 != nil {
			return nil, newError(KindInvalidHeader, "GNU.sparse.major/minor is not numeric")
		}
		majorN, minorN, haveVersion = m, n, true
	case nameOK && mapOK:
		majorN, minorN, haveVersion = 0, 1, true
	default:
		return nil, nil
	}
	if !haveVersion {
		return nil, nil
	}
	if nameOK {
		hdr.Name = name
	}
	if majorN != 0 && majorN != 1 {
		return nil, newErrorf(KindUnsupportedFeature, "unsupported GNU sparse major version %d", majorN)
	}
	if majorN == 0 && minorN != 1 {
		return nil, newErrorf(KindUnsupportedFeature, "unsupported GNU sparse format 0.%d", minorN)
	}
	if majorN == 1 && minorN != 0 {
		return nil, newErrorf(KindUnsupportedFeature, "unsupported GNU sparse format 1.%d", minorN)
	}

	if !realSizeOK {
		return nil, newError(KindInvalidHeader, "GNU sparse entry missing GNU.sparse.realsize")
	}
	realSize, err := strconv.ParseInt(realSizeStr, 10, 64)
	if err != nil || realSize < 0 {
		return nil, newError(KindInvalidHeader, "GNU.sparse.realsize is not a valid non-negative decimal")
	}

	if majorN == 1 {
		return &SparseInfo{RealSize: realSize, needsDataMapPrefix: true}, nil
	}

	// Format 0.1: the map is already fully present in the PAX records.
	segs, err := parseSparseMapCSV(records[paxGNUSparseMap])
	if err != nil {
		return nil, err
	}
	if err := validateSegments(segs, realSize); err != nil {
		return nil, err
	}
	return &SparseInfo{RealSize: realSize, segments: segs}, nil
}
