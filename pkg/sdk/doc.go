// Package seqsearch embeds the sequence search job runner in a Go program.
//
// A Client runs BLAST+ against a local search index, tracks jobs in memory and
// enriches hits from an optional identity table, exactly like the HTTP
// service but without the network hop.
//
//	client, _ := seqsearch.New(ctx,
//	    seqsearch.WithIndex("/data/blastdb/uniprot_sprot", seqsearch.Protein),
//	    seqsearch.WithPostgresIdentity(dsn, "public.protein_identity"),
//	    seqsearch.WithMaxConcurrent(4),
//	)
//	defer client.Close(ctx)
//
//	res, _ := client.Search(ctx, seqsearch.SearchRequest{
//	    Sequence:  "MKTAYIAKQRQISFVKSHFSRQLEERLGLIEVQAPILSRVGDGTQDNLSG",
//	    Algorithm: "blastp",
//	})
//	for _, h := range res.Hits {
//	    fmt.Println(h.Accession, h.GeneName, h.EValue)
//	}
//
// Submit and Status give the asynchronous form of Search.
package seqsearch
