package evhttp_test

import (
	"context"
	"fmt"

	evhttp "github.com/evwire/evhttp"
)

func ExampleClient() {
	cl := evhttp.NewClient()
	resp, err := cl.Get(context.Background(), "http://example.com/?a=b")
	if err != nil {
		fmt.Println(err)
		return
	}
	body, err := resp.Content()
	fmt.Println(err)
	fmt.Println(resp.StatusCode(), len(body) > 0)
}

func ExampleClient_Submit() {
	cl := evhttp.NewClient()
	ctx := context.Background()

	pending, err := cl.Submit(ctx, cl.NewRequest("GET", "http://example.com/"))
	if err != nil {
		fmt.Println(err)
		return
	}
	// do other work, then collect
	resp, err := pending.Wait(ctx)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(resp.Status())
}

func ExampleClient_stream() {
	cl := evhttp.NewClient()
	ctx := context.Background()

	req := cl.NewRequest("GET", "http://example.com/large")
	req.Stream = true
	resp, err := cl.Do(ctx, req)
	if err != nil {
		fmt.Println(err)
		return
	}
	for {
		chunk, err := resp.Stream().Next(ctx)
		if err != nil {
			break
		}
		fmt.Println(len(chunk))
	}
}
