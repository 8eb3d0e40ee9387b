// Package casebase implements the case-based reasoner: a capacity-bounded
// case base with domain/tag/risk secondary indexes, blended-similarity
// retrieval, decision adaptation by weighted voting, and outcome prediction
// and decision validation over the live case base.
//
// Secondary indexes hold only case ids, never references, and are rebuilt
// wholesale on every mutation.
package casebase
