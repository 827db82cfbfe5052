package fat32

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"

	"github.com/fatcrawl/fat32/checkpoint"
)

// Counters tallies a scandisk pass's findings.
type Counters struct {
	ErrorsFound    int
	ErrorsRepaired int
}

// ScanReport summarizes one Scandisk run.
type ScanReport struct {
	SizeCheck   Counters
	CrossChain  Counters
	LostCluster Counters

	FreeClusters     uint32
	UsedClusters     uint32
	ReservedClusters uint32
	BadClusters      uint32
}

func (r *ScanReport) String() string {
	total := r.FreeClusters + r.UsedClusters + r.ReservedClusters + r.BadClusters
	pct := func(n uint32) float64 {
		if total == 0 {
			return 0
		}
		return float64(n) * 100 / float64(total)
	}
	return fmt.Sprintf(
		"oversized %d/%d repaired, cross-linked %d/%d repaired, lost %d/%d repaired; clusters: %s free (%.1f%%), %s used (%.1f%%), %s reserved (%.1f%%), %s bad (%.1f%%)",
		r.SizeCheck.ErrorsRepaired, r.SizeCheck.ErrorsFound,
		r.CrossChain.ErrorsRepaired, r.CrossChain.ErrorsFound,
		r.LostCluster.ErrorsRepaired, r.LostCluster.ErrorsFound,
		humanize.Comma(int64(r.FreeClusters)), pct(r.FreeClusters),
		humanize.Comma(int64(r.UsedClusters)), pct(r.UsedClusters),
		humanize.Comma(int64(r.ReservedClusters)), pct(r.ReservedClusters),
		humanize.Comma(int64(r.BadClusters)), pct(r.BadClusters),
	)
}

// ScanOptions selects which of scandisk's three passes run.
type ScanOptions struct {
	SizeCheck   bool // -z
	CrossChain  bool // -i
	LostCluster bool // -l
}

type scanQueueItem struct {
	parent  *File
	cluster uint32
	depth   int
}

// Scandisk walks the whole directory tree, applying Pass A (size check)
// and Pass B (cross-chain repair) per entry as it decodes, then Pass C
// (lost-cluster sweep) once traversal completes. Findings are accumulated
// rather than aborting the scan.
func (v *Volume) Scandisk(opts ScanOptions) (*ScanReport, error) {
	report := &ScanReport{}
	var errs *multierror.Error

	used := make(map[uint32]bool)
	if opts.LostCluster {
		v.markChainUsed(v.geometry.RootFirstCluster, used)
	}

	root := &File{Attributes: AttrDirectory, LongName: "/"}
	queue := []scanQueueItem{{parent: root, cluster: v.geometry.RootFirstCluster, depth: 0}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if item.depth > maxDirectoryDepth {
			v.logger.Warn("scandisk: directory depth bound exceeded, truncating traversal",
				"path", item.parent.Path(), "depth", item.depth)
			continue
		}

		data, err := v.readClusterChain(item.cluster)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}

		for _, e := range parseDirectoryBytes(data, v.logger) {
			child := newFileFromEntry(e)
			child.parent = item.parent

			if opts.SizeCheck && !child.IsDir() {
				if err := v.scanSizeCheck(child, report); err != nil {
					errs = multierror.Append(errs, err)
				}
			}

			if child.FirstCluster >= 2 {
				if opts.CrossChain {
					if err := v.scanCrossChain(child, used, report); err != nil {
						errs = multierror.Append(errs, err)
					}
				} else if opts.LostCluster {
					v.markChainUsed(child.FirstCluster, used)
				}
			}

			item.parent.children = append(item.parent.children, child)
			if child.IsDir() && child.FirstCluster >= 2 {
				queue = append(queue, scanQueueItem{parent: child, cluster: child.FirstCluster, depth: item.depth + 1})
			}
		}
	}

	if opts.LostCluster {
		if err := v.scanLostClusters(used, report); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	v.tallyClusterStates(report)

	if !v.options.ReadOnly {
		if err := v.finalizeFSInfo(report); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	v.logger.Info("scandisk complete", "report", report.String())

	return report, errs.ErrorOrNil()
}

// scanSizeCheck is Pass A: if the declared size exceeds the chain's
// capacity, the size field is reduced to match. Chains are never
// extended to match an oversized declared size.
func (v *Volume) scanSizeCheck(f *File, report *ScanReport) error {
	if f.FirstCluster < 2 {
		if f.SizeBytes == 0 {
			return nil
		}
		report.SizeCheck.ErrorsFound++
		if err := v.updateDirectoryEntry(f, 0, 0); err != nil {
			return err
		}
		f.SizeBytes = 0
		report.SizeCheck.ErrorsRepaired++
		return nil
	}

	chain, err := v.table.Walk(f.FirstCluster)
	if err != nil && len(chain) == 0 {
		return err
	}

	capacity := uint32(len(chain)) * v.geometry.ClusterSize
	if f.SizeBytes > capacity {
		report.SizeCheck.ErrorsFound++
		if err := v.updateDirectoryEntry(f, f.FirstCluster, capacity); err != nil {
			return err
		}
		f.SizeBytes = capacity
		report.SizeCheck.ErrorsRepaired++
	}
	return nil
}

// scanCrossChain is Pass B: walks f's chain against the global used set,
// and on the first already-used cluster, copies that cluster and every
// cluster after it onto freshly allocated clusters, relinking either the
// predecessor or (if the collision is at the chain's head) f's own
// directory entry.
func (v *Volume) scanCrossChain(f *File, used map[uint32]bool, report *ScanReport) error {
	chain, err := v.table.Walk(f.FirstCluster)
	if err != nil && len(chain) == 0 {
		return err
	}

	collideAt := -1
	for i, c := range chain {
		if used[c] {
			collideAt = i
			break
		}
	}
	if collideAt < 0 {
		for _, c := range chain {
			used[c] = true
		}
		return nil
	}

	report.CrossChain.ErrorsFound++

	suffix := chain[collideAt:]
	newClusters, err := v.table.Allocate(len(suffix))
	if err != nil {
		return err
	}

	for i, old := range suffix {
		start, end := v.geometry.ClusterByteRange(old)
		data, rerr := v.image.ReadAt(start, int(end-start))
		if rerr != nil {
			return checkpoint.Wrap(rerr, errIo)
		}
		nstart, _ := v.geometry.ClusterByteRange(newClusters[i])
		if werr := v.image.WriteAt(nstart, data); werr != nil {
			return checkpoint.Wrap(werr, errIo)
		}
	}

	for i := 0; i < len(newClusters)-1; i++ {
		if err := v.table.Set(newClusters[i], newClusters[i+1]); err != nil {
			return err
		}
	}
	if err := v.table.SetEOC(newClusters[len(newClusters)-1]); err != nil {
		return err
	}

	if collideAt == 0 {
		if err := v.updateDirectoryEntry(f, newClusters[0], f.SizeBytes); err != nil {
			return err
		}
		f.FirstCluster = newClusters[0]
	} else {
		predecessor := chain[collideAt-1]
		if err := v.table.Set(predecessor, newClusters[0]); err != nil {
			return err
		}
	}

	// The original collided suffix is left untouched: some other chain
	// still legitimately owns it.
	for _, c := range chain[:collideAt] {
		used[c] = true
	}
	for _, c := range newClusters {
		used[c] = true
	}

	report.CrossChain.ErrorsRepaired++
	return nil
}

func (v *Volume) markChainUsed(start uint32, used map[uint32]bool) {
	if start < 2 {
		return
	}
	chain, _ := v.table.Walk(start)
	for _, c := range chain {
		used[c] = true
	}
}

// scanLostClusters is Pass C: any FAT slot that looks live (a link or EOC)
// but was never visited during traversal belongs to no file and is freed.
func (v *Volume) scanLostClusters(used map[uint32]bool, report *ScanReport) error {
	total := v.geometry.TotalDataClusters + 2
	for c := uint32(2); c < total; c++ {
		val, err := v.table.Get(c)
		if err != nil {
			return err
		}
		if fatEntry(val).usedOrEOC() && !used[c] {
			report.LostCluster.ErrorsFound++
			if err := v.table.Free(c); err != nil {
				return err
			}
			report.LostCluster.ErrorsRepaired++
		}
	}
	return nil
}

func (v *Volume) tallyClusterStates(report *ScanReport) {
	total := v.geometry.TotalDataClusters + 2
	for c := uint32(2); c < total; c++ {
		val, err := v.table.Get(c)
		if err != nil {
			continue
		}
		e := fatEntry(val)
		switch {
		case e.IsFree():
			report.FreeClusters++
		case e.IsBad():
			report.BadClusters++
		case e.IsReservedRange(), e.IsReserved1():
			report.ReservedClusters++
		default:
			report.UsedClusters++
		}
	}
}

// finalizeFSInfo recomputes and writes an accurate free-cluster count and
// a fresh next-free hint. Scandisk calls this once, after the enabled
// passes complete, unless the volume was opened with Options.ReadOnly.
func (v *Volume) finalizeFSInfo(report *ScanReport) error {
	hint := uint32(fsInfoUnknown)
	if free, err := v.table.FindFree(1, 2); err == nil && len(free) > 0 {
		hint = free[0]
	}
	return WriteFSInfoFields(v.image, v.geometry, report.FreeClusters, hint)
}
