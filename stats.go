package sx1280

// DeviceStats are cumulative traffic counters since Init. Dropped counts
// packets lost to validation, bus failures or timeouts; RxErrors counts
// packets the chip flagged with sync, header or CRC failures.
type DeviceStats struct {
	TxPackets uint64
	TxBytes   uint64
	TxDropped uint64
	RxPackets uint64
	RxBytes   uint64
	RxErrors  uint64
	RxDropped uint64
}

// Stats returns a snapshot of the traffic counters.
func (d *Device) Stats() DeviceStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
