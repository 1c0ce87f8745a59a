/*
Package docmap persists the association between internal document ids and
the user-supplied ids of the documents, on top of an ordered transactional
key-value store (Bolt by default; LevelDB and an in-memory store are also
available).

We implement:

1. Mappings, each a bucket of DocumentID → UserID entries, with put, delete,
clear, point lookup and ordered iteration.

2. An allocator that hands out unused document ids, reusing the gaps left by
deleted documents before growing the id space.

3. Export and import of a mapping as a checksummed dump, for backups and
rebuilds.

# Technical Details

**Buckets.**
Every mapping declared with AddMapping lives in its own bucket. Bolt supports
buckets natively; on LevelDB they are emulated with key prefixes.

**Key encoding.**
Keys are 8-byte big-endian document ids. Byte-wise key order therefore equals
numeric order, which is what both iteration and allocation depend on.

**Value encoding.**
Values are the raw UTF-8 bytes of the user id, without any framing.

**Transactions.**
Reads run in a *Tx, which sees a snapshot of the database. Writes run in
a *WriteTx; the store allows only one at a time. Data returned without copying
(LookupBytes, Cursor.UserIDBytes) is only valid while the transaction is open.

**Allocation.**
NextAvailableDocumentIDs scans the keys once in ascending order. The ids it
returns are free in the transaction's snapshot only, so ingestion should
allocate and insert within the same write transaction (AllocateAndPut).
*/
package docmap
