package hashtable

// Slot is an intermediate (cell, payload) record produced while scanning a
// sequence, destined for a single partition's k2 chunk file before it is
// folded into the compact hash table.
type Slot struct {
	Idx     uint64 // SlotFor: cell index local to its partition; SlotForRead: the full minimizer hash
	Payload uint64 // SlotFor: packed (fingerprint, value) in the low 32 bits; SlotForRead: the full seq_id
}

// packCell packs a fingerprint and a value into a 32-bit cell.
func packCell(fingerprint, value, valueBits uint32) uint32 {
	return (fingerprint << valueBits) | value
}

// unpackCell splits a 32-bit cell back into its fingerprint and value.
func unpackCell(cell, valueBits, valueMask uint32) (fingerprint, value uint32) {
	value = cell & valueMask
	fingerprint = cell >> valueBits
	return fingerprint, value
}

// partitionAndLocalIdx maps a hash to the partition owning its cell and the
// cell's index local to that partition.
func partitionAndLocalIdx(hash uint64, cfg HashConfig) (partitionIndex int, localIdx uint64) {
	cell := hash % cfg.Capacity
	return int(cell / cfg.HashSize), cell % cfg.HashSize
}

// SlotFor computes the partition a (hash, value) pair belongs to and the
// Slot record to write there. The high bits of hash above the cell index
// become the fingerprint; collisions within a partition are resolved later
// by linear probing plus LCA merge, not by this function. value is clipped
// to cfg.ValueBits, so this is for build-time (taxid) payloads only.
func SlotFor(hash uint64, value uint32, cfg HashConfig) (partitionIndex int, slot Slot) {
	partitionIndex, localIdx := partitionAndLocalIdx(hash, cfg)
	fpBits := cfg.FingerprintBits()
	fingerprint := uint32((hash >> 32) & ((uint64(1) << fpBits) - 1))
	payload := uint64(packCell(fingerprint, value&cfg.ValueMask, cfg.ValueBits))
	return partitionIndex, Slot{Idx: localIdx, Payload: payload}
}

// SlotForRead routes a minimizer hash seen while splitting a read into its
// owning partition, carrying the full hash (not the lossy local cell index)
// and a full-width seq_id. A resolve pass later re-derives the taxid by
// looking the hash up directly in that partition's finished table, so
// nothing here needs to fit in value_bits.
func SlotForRead(hash uint64, seqID uint64, cfg HashConfig) (partitionIndex int, slot Slot) {
	partitionIndex, _ = partitionAndLocalIdx(hash, cfg)
	return partitionIndex, Slot{Idx: hash, Payload: seqID}
}
