// Package archiquery embeds the regulation question-answering pipeline in a Go
// program: documents are chunked, embedded and indexed in Redis, and questions are
// answered by an LLM from the most similar chunks.
//
//	client, _ := archiquery.New(ctx,
//	    archiquery.WithRedis("localhost:6379", ""),
//	    archiquery.WithOllamaEmbeddings("http://localhost:11434", "all-minilm"),
//	    archiquery.WithOllama("http://localhost:11434", "llama3.2"),
//	)
//	defer client.Close()
//
//	_, _ = client.IngestFile(ctx, "qcvn-06.md", "fire-safety")
//	ans, _ := client.Query(ctx, archiquery.Query{
//	    Text:    "Minimum width of an escape corridor?",
//	    Folders: []string{"fire-safety"},
//	})
//	fmt.Println(ans.Answer)
package archiquery
