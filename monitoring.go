package docmap

type MappingStats struct {
	Count int
	MinID DocumentID
	MaxID DocumentID

	// Free is the number of unused ids between MinID and MaxID, i.e. how
	// many ids NextAvailableDocumentIDs can hand out before growing past
	// MaxID. Ids below MinID are never handed out.
	Free uint64

	DataSize  int64
	DataAlloc int64
}

func (m Mapping) Stats(txh Txish) (MappingStats, error) {
	tx := txh.DBTx()
	buck, err := tx.bucket(m)
	if err != nil {
		return MappingStats{}, err
	}

	bs, err := buck.Stats()
	if err != nil {
		return MappingStats{}, storageErr("stats", m, err)
	}
	result := MappingStats{
		Count:     bs.KeyN,
		DataSize:  bs.LeafInuse,
		DataAlloc: bs.TotalAlloc(),
	}
	if result.Count == 0 {
		return result, nil
	}

	c := buck.Cursor()
	first, _ := c.First()
	last, _ := c.Last()
	if err := c.Err(); err != nil {
		return MappingStats{}, storageErr("stats", m, err)
	}
	if result.MinID, err = DecodeDocumentID(first); err != nil {
		return MappingStats{}, storageErr("stats", m, err)
	}
	if result.MaxID, err = DecodeDocumentID(last); err != nil {
		return MappingStats{}, storageErr("stats", m, err)
	}
	result.Free = uint64(result.MaxID-result.MinID) - uint64(result.Count-1)
	return result, nil
}
