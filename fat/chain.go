package fat

import (
	"github.com/golang/glog"

	"github.com/aligator/fat2minix/checkpoint"
	"github.com/aligator/fat2minix/diskerr"
)

// Chain iterates over the clusters of a cluster chain. It is used like a
// bufio.Scanner:
//
//	c := v.FollowChain(start)
//	for c.Next() {
//		use(c.Cluster(), c.Bytes())
//	}
//	if err := c.Err(); err != nil {
//		...
//	}
//
// A cluster is only read when Next reaches it, so a chain of n clusters reads
// exactly n clusters. A Chain cannot be restarted; call FollowChain again instead.
type Chain struct {
	v *Volume

	next    uint16
	current uint16
	buf     []byte
	steps   int
	done    bool
	err     error
}

// FollowChain returns a Chain starting at the given cluster.
// Cluster 0 stands for the root directory region, which is yielded once.
func (v *Volume) FollowChain(start uint16) *Chain {
	return &Chain{v: v, next: start}
}

// Next reads the next cluster of the chain. It returns false when the end of
// the chain is reached or an error occurred.
func (c *Chain) Next() bool {
	if c.done {
		return false
	}

	// The root region has no FAT entry.
	if c.steps == 0 && c.next == 0 {
		c.done = true
		return c.read(0)
	}

	// Each cluster can appear only once in a chain.
	if c.steps >= len(c.v.table) {
		c.fail(checkpoint.Errorf("%w: chain has more than %d clusters, it probably loops", diskerr.ErrBadChain, len(c.v.table)))
		return false
	}

	cluster := c.next
	next, err := c.v.Next(cluster)
	if err != nil {
		c.fail(err)
		return false
	}

	if !c.read(cluster) {
		return false
	}

	if next == c.v.endOfChain {
		c.done = true
	} else {
		c.next = next
	}
	return true
}

func (c *Chain) read(cluster uint16) bool {
	buf, err := c.v.ReadCluster(cluster)
	if err != nil {
		c.fail(err)
		return false
	}

	glog.V(2).Infof("chain: step %d, cluster %d", c.steps, cluster)
	c.current = cluster
	c.buf = buf
	c.steps++
	return true
}

func (c *Chain) fail(err error) {
	c.err = err
	c.buf = nil
	c.done = true
}

// Cluster returns the number of the cluster read by the last call to Next.
func (c *Chain) Cluster() uint16 {
	return c.current
}

// Bytes returns the content of the cluster read by the last call to Next.
// The slice is not reused by later calls.
func (c *Chain) Bytes() []byte {
	return c.buf
}

// Err returns the first error which stopped the chain, if any.
func (c *Chain) Err() error {
	return c.err
}

// Clusters walks the chain starting at start through the in-memory FAT only and
// returns the cluster numbers. Nothing is read from the device.
// Start cluster 0 returns []uint16{0}, the root region.
func (v *Volume) Clusters(start uint16) ([]uint16, error) {
	if start == 0 {
		return []uint16{0}, nil
	}

	var clusters []uint16
	cluster := start
	for {
		if len(clusters) >= len(v.table) {
			return nil, checkpoint.Errorf("%w: chain starting at %d loops", diskerr.ErrBadChain, start)
		}

		next, err := v.Next(cluster)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, cluster)

		if next == v.endOfChain {
			return clusters, nil
		}
		cluster = next
	}
}
