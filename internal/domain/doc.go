// Package domain models Japanese Address Base Registry (ABR) reference data
// and the query record that traverses the geocoding pipeline.
//
// # Data Source
//
// Reference rows originate from the Address Base Registry published by the
// Digital Agency, distributed as CSV datasets through a CKAN catalog. The
// download command fetches and materializes them into a local SQLite store;
// the geocode command reads them back through the ReferenceStore interface.
//
// # Administrative Hierarchy
//
// An address resolves through the following levels, tracked by MatchLevel:
//
//	prefecture (都道府県) → city/ward (市区町村, optionally with a county 郡)
//	→ town/ōaza (町字) → chōme/koaza detail → residence block (街区) and
//	display number (住居番号), or parcel (地番) for areas without residence
//	addressing.
//
// Whether an area uses residence addressing is recorded per town row in
// rsdt_addr_flg ("1" for residence addressing, "0" for parcel addressing).
//
// # Key Derivation
//
// Row keys (town_key, rsdtblk_key, rsdtdsp_key, ...) are deterministic
// SHA-256 hashes of the identifying columns (lg_code, machiaza_id, blk_id,
// rsdt_id, rsdt2_id, rsdt_addr_flg). Hashing a row twice always yields the
// same key, so reference data can be rebuilt from scratch without breaking
// references held elsewhere. See [DeriveKey].
//
// # Query Records
//
// A Query is immutable by convention: stages copy it, refine the copy, and
// pass the copy on. The residual, still-unresolved portion of the address
// rides along as a charnode chain whose characters keep their original input
// positions, which is what lets a later stage report how many source
// characters were actually consumed.
package domain
