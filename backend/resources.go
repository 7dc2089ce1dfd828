package backend

import (
	"context"
	"net/http"
)

// Cliente is a customer record.
type Cliente struct {
	ID          int64  `json:"id,omitempty"`
	NomeCliente string `json:"nomeCliente"`
}

// Projeto is a project belonging to a Cliente.
type Projeto struct {
	ID          int64  `json:"id,omitempty"`
	NomeProjeto string `json:"nomeProjeto"`
	IDCliente   int64  `json:"idCliente"`
}

// Tarefa is a task belonging to a Projeto. The dates are kept as the backend formats them.
type Tarefa struct {
	ID            int64  `json:"id,omitempty"`
	NomeTask      string `json:"nomeTask"`
	DescricaoTask string `json:"descricaoTask"`
	IDProjeto     int64  `json:"idProjeto"`
	TagTask       string `json:"tagTask"`
	DataInicio    string `json:"dataInicio"`
	DataFim       string `json:"dataFim"`
	IsAtivo       bool   `json:"isAtivo"`
}

// ClienteService handles /clientes.
type ClienteService struct {
	client *Client
}

func (s *ClienteService) List(ctx context.Context) ([]Cliente, error) {
	var clientes []Cliente
	err := s.client.do(ctx, http.MethodGet, []string{"clientes"}, nil, &clientes)
	return clientes, err
}

func (s *ClienteService) Get(ctx context.Context, id int64) (*Cliente, error) {
	var cliente Cliente
	if err := s.client.do(ctx, http.MethodGet, []string{"clientes", itoa(id)}, nil, &cliente); err != nil {
		return nil, err
	}
	return &cliente, nil
}

func (s *ClienteService) Create(ctx context.Context, cliente Cliente) (*Cliente, error) {
	cliente.ID = 0
	var created Cliente
	if err := s.client.do(ctx, http.MethodPost, []string{"clientes"}, cliente, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *ClienteService) Update(ctx context.Context, id int64, cliente Cliente) (*Cliente, error) {
	cliente.ID = 0
	var updated Cliente
	if err := s.client.do(ctx, http.MethodPut, []string{"clientes", itoa(id)}, cliente, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *ClienteService) Delete(ctx context.Context, id int64) error {
	return s.client.do(ctx, http.MethodDelete, []string{"clientes", itoa(id)}, nil, nil)
}

// ProjetoService handles /projetos.
type ProjetoService struct {
	client *Client
}

func (s *ProjetoService) List(ctx context.Context) ([]Projeto, error) {
	var projetos []Projeto
	err := s.client.do(ctx, http.MethodGet, []string{"projetos"}, nil, &projetos)
	return projetos, err
}

// ListByCliente returns the projects of one customer.
func (s *ProjetoService) ListByCliente(ctx context.Context, clienteID int64) ([]Projeto, error) {
	var projetos []Projeto
	err := s.client.do(ctx, http.MethodGet, []string{"projetos", "cliente", itoa(clienteID)}, nil, &projetos)
	return projetos, err
}

func (s *ProjetoService) Get(ctx context.Context, id int64) (*Projeto, error) {
	var projeto Projeto
	if err := s.client.do(ctx, http.MethodGet, []string{"projetos", itoa(id)}, nil, &projeto); err != nil {
		return nil, err
	}
	return &projeto, nil
}

func (s *ProjetoService) Create(ctx context.Context, projeto Projeto) (*Projeto, error) {
	projeto.ID = 0
	var created Projeto
	if err := s.client.do(ctx, http.MethodPost, []string{"projetos"}, projeto, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *ProjetoService) Update(ctx context.Context, id int64, projeto Projeto) (*Projeto, error) {
	projeto.ID = 0
	var updated Projeto
	if err := s.client.do(ctx, http.MethodPut, []string{"projetos", itoa(id)}, projeto, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *ProjetoService) Delete(ctx context.Context, id int64) error {
	return s.client.do(ctx, http.MethodDelete, []string{"projetos", itoa(id)}, nil, nil)
}

// TarefaService handles /tasks.
type TarefaService struct {
	client *Client
}

func (s *TarefaService) List(ctx context.Context) ([]Tarefa, error) {
	var tarefas []Tarefa
	err := s.client.do(ctx, http.MethodGet, []string{"tasks"}, nil, &tarefas)
	return tarefas, err
}

// ListByProjeto returns the tasks of one project.
func (s *TarefaService) ListByProjeto(ctx context.Context, projetoID int64) ([]Tarefa, error) {
	var tarefas []Tarefa
	err := s.client.do(ctx, http.MethodGet, []string{"tasks", "projeto", itoa(projetoID)}, nil, &tarefas)
	return tarefas, err
}

func (s *TarefaService) Get(ctx context.Context, id int64) (*Tarefa, error) {
	var tarefa Tarefa
	if err := s.client.do(ctx, http.MethodGet, []string{"tasks", itoa(id)}, nil, &tarefa); err != nil {
		return nil, err
	}
	return &tarefa, nil
}

// GetByTag returns the task carrying tag. The backend answers a single task, not a list.
func (s *TarefaService) GetByTag(ctx context.Context, tag string) (*Tarefa, error) {
	var tarefa Tarefa
	if err := s.client.do(ctx, http.MethodGet, []string{"tasks", "tag", tag}, nil, &tarefa); err != nil {
		return nil, err
	}
	return &tarefa, nil
}

func (s *TarefaService) Create(ctx context.Context, tarefa Tarefa) (*Tarefa, error) {
	tarefa.ID = 0
	var created Tarefa
	if err := s.client.do(ctx, http.MethodPost, []string{"tasks"}, tarefa, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *TarefaService) Update(ctx context.Context, id int64, tarefa Tarefa) (*Tarefa, error) {
	tarefa.ID = 0
	var updated Tarefa
	if err := s.client.do(ctx, http.MethodPut, []string{"tasks", itoa(id)}, tarefa, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *TarefaService) Delete(ctx context.Context, id int64) error {
	return s.client.do(ctx, http.MethodDelete, []string{"tasks", itoa(id)}, nil, nil)
}
