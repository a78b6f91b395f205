package server

import "fmt"

type GreetInput struct {
	Name string `json:"name"`
}

var Greet = RpcMethod[GreetInput, string]{
	Name: "greet",
	Run: func(req RpcRequest[GreetInput]) (string, *HttpError) {
		return fmt.Sprintf("Hello, %s!", req.Data.Name), nil
	},
}
