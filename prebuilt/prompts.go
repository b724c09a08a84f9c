package prebuilt

const gradeDocumentPrompt = `You are a grader assessing the relevance of a retrieved document to a user question.
If the document contains keywords or meaning related to the question, grade it as relevant.
The goal is to filter out erroneous retrievals; it does not need to be a stringent test.
Reply with a JSON object {"binary_score": "yes"} or {"binary_score": "no"}.`

const rewriteQuestionPrompt = `You are a question re-writer that converts an input question into a better version
optimized for retrieval and web search. Look at the input and reason about the underlying semantic intent.
Reply with the improved question only.`

const generatePrompt = `You are an assistant for question-answering tasks.
Use the following pieces of retrieved context to answer the question.
If you don't know the answer, just say that you don't know.
Use three sentences maximum and keep the answer concise.`

const hallucinationPrompt = `You are a grader assessing whether an LLM generation is grounded in / supported by a set of retrieved facts.
Reply with a JSON object {"binary_score": "yes"} if the answer is grounded in the facts, otherwise {"binary_score": "no"}.`

const answerPrompt = `You are a grader assessing whether an answer addresses / resolves a question.
Reply with a JSON object {"binary_score": "yes"} if the answer resolves the question, otherwise {"binary_score": "no"}.`

const routeQuestionPrompt = `You are an expert at routing a user question to a vectorstore or web search.
The vectorstore contains documents related to %s.
Use the vectorstore for questions on these topics. Otherwise, use web search.
Reply with a JSON object {"datasource": "vectorstore"} or {"datasource": "web_search"}.`
