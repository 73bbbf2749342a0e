package sdtree

import "math"

// getMajorizingFactor returns (pdfThis, pdfOther) at the point in the dual
// tree walk where pdfOther/pdfThis is largest, i.e. the tightest
// (pdfThis, pdfOther) pair witnessing the majorization A = pdfOther/pdfThis
// such that A*pdfThis(w) >= pdfOther(w) everywhere.
//
// The two trees may have different topologies. Once one side reaches a
// leaf, its contribution to the running factor is frozen: a quadtree leaf
// already represents the finest resolution available for that cell, and a
// further virtual subdivision of a uniform cell would contribute a factor
// of exactly 1 at every deeper level (4 children each inheriting exactly a
// quarter of the parent's uniform density), so "frozen" is mathematically
// equivalent to "assume uniform beyond this point".
func getMajorizingFactor(this, other *DTree) (float64, float64) {
	bestRatio := -1.0
	var bestThis, bestOther float64

	var walk func(thisIdx int, thisFactor float64, thisFrozen bool, otherIdx int, otherFactor float64, otherFrozen bool)
	walk = func(thisIdx int, thisFactor float64, thisFrozen bool, otherIdx int, otherFactor float64, otherFrozen bool) {
		if thisFrozen && otherFrozen {
			return
		}
		var thisNode, otherNode *QuadTreeNode
		var thisTotal, otherTotal float64
		if !thisFrozen {
			thisNode = &this.nodes[thisIdx]
			thisTotal = thisNode.total()
		}
		if !otherFrozen {
			otherNode = &other.nodes[otherIdx]
			otherTotal = otherNode.total()
		}

		for i := 0; i < 4; i++ {
			tf := thisFactor
			if !thisFrozen {
				if thisTotal > probEpsilon {
					tf = thisFactor * 4 * thisNode.sumAt(i) / thisTotal
				} else {
					tf = thisFactor
				}
			}
			of := otherFactor
			if !otherFrozen {
				if otherTotal > probEpsilon {
					of = otherFactor * 4 * otherNode.sumAt(i) / otherTotal
				} else {
					of = otherFactor
				}
			}

			pThis := math.Max(tf, probEpsilon)
			pOther := math.Max(of, probEpsilon)
			ratio := pOther / pThis
			if ratio > bestRatio {
				bestRatio = ratio
				bestThis, bestOther = pThis, pOther
			}

			nextThisFrozen := thisFrozen || thisNode.isLeaf(i)
			nextOtherFrozen := otherFrozen || otherNode.isLeaf(i)
			if nextThisFrozen && nextOtherFrozen {
				continue
			}
			nextThisIdx := thisIdx
			if !nextThisFrozen {
				nextThisIdx = int(thisNode.child[i])
			}
			nextOtherIdx := otherIdx
			if !nextOtherFrozen {
				nextOtherIdx = int(otherNode.child[i])
			}
			walk(nextThisIdx, tf, nextThisFrozen, nextOtherIdx, of, nextOtherFrozen)
		}
	}
	walk(0, 1.0, false, 0, 1.0, false)
	return bestThis, bestOther
}

// ValidateMajorizingFactor asserts that A*pdfThis(w) >= pdfOther(w) - eps at
// every leaf pair reachable by the dual walk. Exported for direct use from
// tests, in the teacher's style of exposing invariant checks as ordinary
// functions rather than hiding them behind build tags.
func ValidateMajorizingFactor(this, other *DTree, A float64) bool {
	ok := true
	var walk func(thisIdx int, thisFactor float64, thisFrozen bool, otherIdx int, otherFactor float64, otherFrozen bool)
	walk = func(thisIdx int, thisFactor float64, thisFrozen bool, otherIdx int, otherFactor float64, otherFrozen bool) {
		if thisFrozen && otherFrozen {
			return
		}
		var thisNode, otherNode *QuadTreeNode
		var thisTotal, otherTotal float64
		if !thisFrozen {
			thisNode = &this.nodes[thisIdx]
			thisTotal = thisNode.total()
		}
		if !otherFrozen {
			otherNode = &other.nodes[otherIdx]
			otherTotal = otherNode.total()
		}
		for i := 0; i < 4; i++ {
			tf := thisFactor
			if !thisFrozen {
				if thisTotal > probEpsilon {
					tf = thisFactor * 4 * thisNode.sumAt(i) / thisTotal
				}
			}
			of := otherFactor
			if !otherFrozen {
				if otherTotal > probEpsilon {
					of = otherFactor * 4 * otherNode.sumAt(i) / otherTotal
				}
			}
			pThis := math.Max(tf, probEpsilon)
			pOther := math.Max(of, probEpsilon)
			if A*pThis < pOther-1e-4 {
				ok = false
			}

			nextThisFrozen := thisFrozen || thisNode.isLeaf(i)
			nextOtherFrozen := otherFrozen || otherNode.isLeaf(i)
			if nextThisFrozen && nextOtherFrozen {
				continue
			}
			nextThisIdx := thisIdx
			if !nextThisFrozen {
				nextThisIdx = int(thisNode.child[i])
			}
			nextOtherIdx := otherIdx
			if !nextOtherFrozen {
				nextOtherIdx = int(otherNode.child[i])
			}
			walk(nextThisIdx, tf, nextThisFrozen, nextOtherIdx, of, nextOtherFrozen)
		}
	}
	walk(0, 1.0, false, 0, 1.0, false)
	return ok
}

// computeAugmentedPdf computes the majorized residual density
// max(0, (A*newPdf - oldPdf)/(A-1)).
func computeAugmentedPdf(oldPdf, newPdf, A float64) float64 {
	return math.Max(0, (A*newPdf-oldPdf)/(A-1))
}

// computeAugmentedPdfUnmajorized computes the plain residual max(newPdf-oldPdf, 0).
func computeAugmentedPdfUnmajorized(oldPdf, newPdf float64) float64 {
	return math.Max(newPdf-oldPdf, 0)
}

// buildResidual grows d into the residual quadtree of (old, newT): if A > 0
// it uses the majorized residual formula, otherwise the plain one. Returns
// the built integral (meaningful for the unmajorized variant).
func (d *DTree) buildResidual(old, newT *DTree, A float64) float64 {
	d.nodes = make([]QuadTreeNode, 1)

	type item struct {
		curIdx               int
		oldIdx, newIdx       int
		oldFrozen, newFrozen bool
		oldFactor, newFactor float64
		depth                int
	}
	stack := []item{{0, 0, 0, false, false, 1.0, 1.0, 0}}

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		var oldNode, newNode *QuadTreeNode
		var oldTotal, newTotal float64
		if !it.oldFrozen {
			oldNode = &old.nodes[it.oldIdx]
			oldTotal = oldNode.total()
		}
		if !it.newFrozen {
			newNode = &newT.nodes[it.newIdx]
			newTotal = newNode.total()
		}

		for i := 0; i < 4; i++ {
			of := it.oldFactor
			if !it.oldFrozen {
				if oldTotal > probEpsilon {
					of = it.oldFactor * 4 * oldNode.sumAt(i) / oldTotal
				}
			}
			nf := it.newFactor
			if !it.newFrozen {
				if newTotal > probEpsilon {
					nf = it.newFactor * 4 * newNode.sumAt(i) / newTotal
				}
			}

			var residual float64
			if A > 0 {
				residual = computeAugmentedPdf(of, nf, A)
			} else {
				residual = computeAugmentedPdfUnmajorized(of, nf)
			}

			nextOldFrozen := it.oldFrozen || oldNode.isLeaf(i)
			nextNewFrozen := it.newFrozen || newNode.isLeaf(i)
			depth := it.depth + 1

			if !nextOldFrozen && !nextNewFrozen {
				d.nodes = append(d.nodes, QuadTreeNode{})
				childIdx := len(d.nodes) - 1
				d.nodes[it.curIdx].child[i] = uint16(childIdx)

				nextOldIdx := it.oldIdx
				if !it.oldFrozen && !oldNode.isLeaf(i) {
					nextOldIdx = int(oldNode.child[i])
				}
				nextNewIdx := it.newIdx
				if !it.newFrozen && !newNode.isLeaf(i) {
					nextNewIdx = int(newNode.child[i])
				}
				stack = append(stack, item{childIdx, nextOldIdx, nextNewIdx, nextOldFrozen, nextNewFrozen, of, nf, depth})
			} else {
				d.nodes[it.curIdx].sum[i].store(residual)
			}
		}
	}

	d.Build()
	d.statisticalWeight.store(newT.statisticalWeight.load())
	return d.sum.load()
}

// buildAugmented builds the majorized residual distribution of (old, newT)
// into d, using A = getMajorizingFactor(newT, old). Returns B = A-1, the
// residual mass fraction; 0 when no augmentation is needed.
func (d *DTree) buildAugmented(old, newT *DTree) float64 {
	pdfNewT, pdfOld := getMajorizingFactor(newT, old)
	var A float64
	if pdfNewT < probEpsilon && pdfOld < probEpsilon {
		A = 1
	} else {
		A = pdfOld / pdfNewT
	}
	if math.Abs(A-1) < probEpsilon {
		d.nodes = make([]QuadTreeNode, 1)
		d.statisticalWeight.store(newT.statisticalWeight.load())
		d.sum.store(0)
		return 0
	}
	d.buildResidual(old, newT, A)
	return A - 1
}

// buildUnmajorizedAugmented builds the plain (non-majorized) residual
// distribution max(newPdf-oldPdf,0) into d. Returns its integral as B.
func (d *DTree) buildUnmajorizedAugmented(old, newT *DTree) float64 {
	return d.buildResidual(old, newT, 0)
}

// getMajorizingFactorPair exposes the cached rejection PDF pair computation
// for use by DTreeWrapper.
func getMajorizingFactorPair(this, other *DTree) (float64, float64) {
	return getMajorizingFactor(this, other)
}
